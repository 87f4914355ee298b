package metrics

import (
	"reflect"
	"testing"
)

func TestRing(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		push     []float64
		want     []float64
	}{
		{"empty", 3, nil, []float64{}},
		{"partial", 3, []float64{1, 2}, []float64{1, 2}},
		{"full", 3, []float64{1, 2, 3}, []float64{1, 2, 3}},
		{"wrapped once", 3, []float64{1, 2, 3, 4}, []float64{2, 3, 4}},
		{"wrapped twice", 3, []float64{1, 2, 3, 4, 5, 6, 7}, []float64{5, 6, 7}},
		{"capacity one", 1, []float64{1, 2, 3}, []float64{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRing(tt.capacity)
			for _, v := range tt.push {
				r.push(v)
			}
			if got := r.values(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("values() = %v, want %v", got, tt.want)
			}
			if r.len() != len(tt.want) {
				t.Errorf("len() = %d, want %d", r.len(), len(tt.want))
			}
		})
	}
}

func TestRing_ValuesIsACopy(t *testing.T) {
	r := newRing(2)
	r.push(1)

	got := r.values()
	got[0] = 99

	if r.values()[0] != 1 {
		t.Error("values() exposed the internal buffer")
	}
}
