package metrics

import "github.com/psaab/frpd/pkg/frp"

// Hardware wraps hw so every operation is counted. The wrapper keeps the
// feature report of hw.
func (m *Metrics) Hardware(hw frp.Hardware) frp.Hardware {
	return &countingHW{hw: hw, m: m}
}

type countingHW struct {
	hw frp.Hardware
	m  *Metrics
}

func (c *countingHW) observe(op string, err error) error {
	c.m.hwOps.WithLabelValues(op).Inc()
	if err != nil {
		c.m.hwErrors.WithLabelValues(op).Inc()
	}
	return err
}

func (c *countingHW) DisableParser() error {
	return c.observe("disable", c.hw.DisableParser())
}

func (c *countingHW) EnableParser() error {
	return c.observe("enable", c.hw.EnableParser())
}

func (c *countingHW) WriteSlot(index uint32, s frp.Slot) error {
	return c.observe("write_slot", c.hw.WriteSlot(index, s))
}

func (c *countingHW) WriteValidCount(n uint32) error {
	return c.observe("write_valid_count", c.hw.WriteValidCount(n))
}

func (c *countingHW) ParserSupported() bool {
	if p, ok := c.hw.(frp.FeatureProber); ok {
		return p.ParserSupported()
	}
	return true
}
