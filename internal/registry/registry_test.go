package registry

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/tracesweep/internal/errs"
)

type shape interface{ Area() float64 }

type square struct{ side float64 }

func (s *square) Area() float64 { return s.side * s.side }

type squareParams struct {
	Side float64 `param:"side"`
}

func newSquare(p squareParams) (*square, error) {
	if p.Side < 0 {
		return nil, errors.New("negative side")
	}
	return &square{side: p.Side}, nil
}

type canvas struct {
	Shapes []shape `param:"shapes"`
}

type window struct {
	Width  int `param:"width"`
	Height int `param:"height,optional"`
}

func (w *window) Validate() error {
	if w.Width <= 0 {
		return errors.New("width must be positive")
	}
	return nil
}

type shapesModule struct{}

func (shapesModule) Register(r *Registry) {
	RegisterMember[shape](r, NewClass("SQUARE", newSquare))
}

func TestFamilyLookup(t *testing.T) {
	r := New(shapesModule{})

	fam, ok := r.Family(reflect.TypeOf((*shape)(nil)).Elem())
	require.True(t, ok)
	assert.Equal(t, []string{"SQUARE"}, fam.Tags())

	c, err := fam.Lookup("SQUARE")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(squareParams{}), c.Params)

	_, err = fam.Lookup("square")
	require.Error(t, err, "tags match exactly")
	assert.True(t, errors.Is(err, errs.ErrUnknownVariant))
	var uv *errs.UnknownVariantError
	require.True(t, errors.As(err, &uv))
	assert.Equal(t, []string{"SQUARE"}, uv.Known)
}

func TestRegisterPanics(t *testing.T) {
	r := New(shapesModule{})
	assert.Panics(t, func() { shapesModule{}.Register(r) }, "duplicate tag")
	assert.Panics(t, func() {
		RegisterMember[shape](r, NewClass("WINDOW", func(p window) (window, error) { return p, nil }))
	}, "result does not implement the family")
	assert.Panics(t, func() { r.Register(reflect.TypeOf(0), NewClass("SQUARE2", newSquare)) }, "family must be an interface")
	assert.Panics(t, func() { NewClass("BAD", func(p int) (int, error) { return p, nil }) }, "params must be a struct")

	r.RegisterClass(StructClass(reflect.TypeOf(&window{})))
	assert.Panics(t, func() { r.RegisterClass(StructClass(reflect.TypeOf(&window{}))) })
}

func TestClassNew(t *testing.T) {
	c := NewClass("SQUARE", newSquare)

	out, err := c.New(reflect.ValueOf(squareParams{Side: 3}))
	require.NoError(t, err)
	assert.Equal(t, 9.0, out.(shape).Area())

	_, err = c.New(reflect.ValueOf(squareParams{Side: -1}))
	assert.EqualError(t, err, "negative side")

	_, err = c.New(reflect.ValueOf(window{}))
	assert.Error(t, err)
}

func TestStructClass(t *testing.T) {
	r := New()

	c, err := r.ClassFor(reflect.TypeOf(&window{}))
	require.NoError(t, err)
	assert.Equal(t, "window", c.Name)

	again, err := r.ClassFor(reflect.TypeOf(&window{}))
	require.NoError(t, err)
	assert.Same(t, c, again)

	out, err := c.New(reflect.ValueOf(window{Width: 4}))
	require.NoError(t, err)
	assert.Equal(t, &window{Width: 4}, out)

	_, err = c.New(reflect.ValueOf(window{}))
	assert.EqualError(t, err, "width must be positive")

	byValue, err := r.ClassFor(reflect.TypeOf(window{}))
	require.NoError(t, err)
	out, err = byValue.New(reflect.ValueOf(window{Width: 2}))
	require.NoError(t, err)
	assert.Equal(t, window{Width: 2}, out)

	_, err = r.ClassFor(reflect.TypeOf(0))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	r := New()
	r.RegisterClass(NewClass("CANVAS", func(p canvas) (*canvas, error) { return &p, nil }))

	err := r.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry validation failed")
	assert.Contains(t, err.Error(), "no family registered")

	shapesModule{}.Register(r)
	assert.NoError(t, r.Validate(context.Background()))

	type broken struct {
		A int `param:"a" default:"x"`
	}
	r.RegisterClass(NewClass("BROKEN", func(p broken) (*broken, error) { return &p, nil }))
	err = r.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class 'BROKEN'")
}

func TestClasses_StableOrder(t *testing.T) {
	r := New(shapesModule{})
	r.RegisterClass(NewClass("CANVAS", func(p canvas) (*canvas, error) { return &p, nil }))

	var names []string
	for _, c := range r.Classes() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"SQUARE", "CANVAS"}, names)
}
