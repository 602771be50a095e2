package visualiser

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/banshee-data/radar-sweep/internal/sweep"
)

// Frame is one rendered view of the sweep.
type Frame struct {
	Seq        uint64
	Time       time.Time
	Resolution int
	MoveSize   int
	Head       sweep.Chord
	Annotation sweep.Annotation
	// Indices, Xs and Ys list the set cells only, in index order.
	Indices []int
	Xs      []float64
	Ys      []float64
}

// NewFrame captures the current state of recon.
func NewFrame(recon *sweep.Reconstructor, seq uint64, now time.Time) *Frame {
	buf := recon.Buffer()
	f := &Frame{
		Seq:        seq,
		Time:       now,
		Resolution: recon.Resolution(),
		MoveSize:   recon.MoveSize(),
		Head:       recon.Head(),
		Annotation: recon.Annotation(),
	}
	for i, p := range recon.Polygon() {
		if _, ok := buf.Lookup(sweep.Index(i)); !ok {
			continue
		}
		f.Indices = append(f.Indices, i)
		f.Xs = append(f.Xs, p.X)
		f.Ys = append(f.Ys, p.Y)
	}
	return f
}

func numberList[T int | float64](xs []T) *structpb.Value {
	vals := make([]*structpb.Value, len(xs))
	for i, x := range xs {
		vals[i] = structpb.NewNumberValue(float64(x))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func pointStruct(p sweep.Point) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"x": structpb.NewNumberValue(p.X),
		"y": structpb.NewNumberValue(p.Y),
	}})
}

// Encode converts the frame to its wire form.
func (f *Frame) Encode() *structpb.Struct {
	ts := timestamppb.New(f.Time)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"seq": structpb.NewNumberValue(float64(f.Seq)),
		"time": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"seconds": structpb.NewNumberValue(float64(ts.GetSeconds())),
			"nanos":   structpb.NewNumberValue(float64(ts.GetNanos())),
		}}),
		"resolution": structpb.NewNumberValue(float64(f.Resolution)),
		"move_size":  structpb.NewNumberValue(float64(f.MoveSize)),
		"head": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"index": structpb.NewNumberValue(float64(f.Head.ToIndex)),
			"from":  pointStruct(f.Head.From),
			"to":    pointStruct(f.Head.To),
		}}),
		"annotation": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"angle":    structpb.NewNumberValue(float64(f.Annotation.Angle)),
			"distance": structpb.NewNumberValue(float64(f.Annotation.Distance)),
			"has_data": structpb.NewBoolValue(f.Annotation.HasData),
			"text":     structpb.NewStringValue(f.Annotation.String()),
		}}),
		"indices": numberList(f.Indices),
		"xs":      numberList(f.Xs),
		"ys":      numberList(f.Ys),
	}}
}

var errMalformedFrame = errors.New("malformed sweep frame")

type decoder struct {
	fields map[string]*structpb.Value
	err    error
}

func (d *decoder) number(name string) float64 {
	v, ok := d.fields[name]
	if !ok {
		d.fail(name, "missing")
		return 0
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		d.fail(name, "not a number")
		return 0
	}
	return n.NumberValue
}

func (d *decoder) sub(name string) *decoder {
	s := d.fields[name].GetStructValue()
	if s == nil {
		d.fail(name, "not an object")
		return &decoder{fields: map[string]*structpb.Value{}, err: d.err}
	}
	return &decoder{fields: s.GetFields()}
}

func (d *decoder) point(name string) sweep.Point {
	sd := d.sub(name)
	p := sweep.Point{X: sd.number("x"), Y: sd.number("y")}
	d.merge(sd)
	return p
}

func (d *decoder) list(name string) []float64 {
	l := d.fields[name].GetListValue()
	if l == nil {
		d.fail(name, "not a list")
		return nil
	}
	out := make([]float64, len(l.GetValues()))
	for i, v := range l.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			d.fail(name, "contains a non-number")
			return nil
		}
		out[i] = n.NumberValue
	}
	return out
}

func (d *decoder) fail(name, why string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: field %q %s", errMalformedFrame, name, why)
	}
}

func (d *decoder) merge(o *decoder) {
	if d.err == nil {
		d.err = o.err
	}
}

// DecodeFrame parses a frame received from StreamSweep.
func DecodeFrame(msg *structpb.Struct) (*Frame, error) {
	d := &decoder{fields: msg.GetFields()}
	f := &Frame{
		Seq:        uint64(d.number("seq")),
		Resolution: int(d.number("resolution")),
		MoveSize:   int(d.number("move_size")),
	}

	td := d.sub("time")
	ts := &timestamppb.Timestamp{Seconds: int64(td.number("seconds")), Nanos: int32(td.number("nanos"))}
	d.merge(td)

	hd := d.sub("head")
	idx := sweep.Index(hd.number("index"))
	f.Head = sweep.Chord{FromIndex: idx, ToIndex: idx, From: hd.point("from"), To: hd.point("to")}
	d.merge(hd)

	ad := d.sub("annotation")
	f.Annotation = sweep.Annotation{
		Angle:    sweep.Index(ad.number("angle")),
		Distance: sweep.Distance(ad.number("distance")),
		HasData:  ad.fields["has_data"].GetBoolValue(),
	}
	d.merge(ad)

	for _, i := range d.list("indices") {
		f.Indices = append(f.Indices, int(i))
	}
	f.Xs = d.list("xs")
	f.Ys = d.list("ys")

	if d.err != nil {
		return nil, d.err
	}
	if err := ts.CheckValid(); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	f.Time = ts.AsTime()
	if len(f.Xs) != len(f.Indices) || len(f.Ys) != len(f.Indices) {
		return nil, fmt.Errorf("%w: point lists differ in length", errMalformedFrame)
	}
	return f, nil
}

// NewStreamRequest builds the StreamSweep request for the given interval.
func NewStreamRequest(interval time.Duration) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"interval_ms": structpb.NewNumberValue(float64(interval.Milliseconds())),
	}}
}
