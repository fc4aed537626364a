package stdout

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"costa/sink"
)

/* ────────── config ────────── */
type Config struct {
	Pretty bool
	Writer io.Writer // nil → os.Stdout
}

/* ────────── driver ────────── */
type driver struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	w := c.Writer
	if w == nil {
		w = os.Stdout
	}
	d.enc = json.NewEncoder(w)
	if c.Pretty {
		d.enc.SetIndent("", "  ")
	}
	return nil
}

func (d *driver) Push(ev sink.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enc == nil {
		d.enc = json.NewEncoder(os.Stdout)
	}
	return d.enc.Encode(ev)
}

func (d *driver) Close() error { return nil }

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
