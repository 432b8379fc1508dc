package job

import (
	"errors"
	"fmt"
	"strings"
)

// Direction says whether larger or smaller metric values are better.
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

func (d Direction) String() string {
	if d == Minimize {
		return "MIN"
	}
	return "MAX"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts MAX/MIN (and MAXIMIZE/MINIMIZE) in any case.
func (d *Direction) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "MAX", "MAXIMIZE":
		*d = Maximize
	case "MIN", "MINIMIZE":
		*d = Minimize
	default:
		return fmt.Errorf("unknown direction %q (want MAX or MIN)", text)
	}
	return nil
}

// Criterion ranks jobs by one metric of their result body.
type Criterion struct {
	Metric    string    `param:"metric" json:"metric"`
	Direction Direction `param:"direction" default:"MAX" json:"direction"`
}

func (c *Criterion) Validate() error {
	if c.Metric == "" {
		return errors.New("comparison criterion needs a metric name")
	}
	return nil
}

// Better reports whether a ranks strictly above b.
//
// When both results carry the metric, the metric decides. Otherwise status
// decides (SUCCESS > IN_PROGRESS > the rest), and on equal status the side
// that has the metric wins.
func (c *Criterion) Better(a, b Job) bool {
	ra, rb := a.Result(), b.Result()
	va, okA := Metric(ra.Body, c.Metric)
	vb, okB := Metric(rb.Body, c.Metric)

	if okA && okB {
		if c.Direction == Minimize {
			return va < vb
		}
		return va > vb
	}
	if ra.Status.rank() != rb.Status.rank() {
		return ra.Status.rank() > rb.Status.rank()
	}
	return okA && !okB
}

// Best returns the highest ranked job. Ties keep the earlier job. It
// returns nil when c is nil or jobs is empty.
func Best(jobs []Job, c *Criterion) Job {
	if c == nil || len(jobs) == 0 {
		return nil
	}
	best := jobs[0]
	for _, j := range jobs[1:] {
		if c.Better(j, best) {
			best = j
		}
	}
	return best
}

// Metric reads a numeric value from body. Dotted names walk nested maps.
func Metric(body Body, name string) (float64, bool) {
	var cur any = map[string]any(body)
	for _, part := range strings.Split(name, ".") {
		var m map[string]any
		switch x := cur.(type) {
		case map[string]any:
			m = x
		case Body:
			m = x
		default:
			return 0, false
		}
		v, ok := m[part]
		if !ok {
			return 0, false
		}
		cur = v
	}
	return toFloat(cur)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}
