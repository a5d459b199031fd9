// Package mixer produces the single pre-mixed audio buffer an export hands to
// its sink.
//
// Mixing is sample-accurate overlay-add: each track is placed at
// round(start*rate), scaled by volume and a balance pan law, summed in
// float64, and hard-clamped to [-1, 1]. Tracks are summed in a canonical
// order so the output is bit-identical for any insertion order. Sources at
// other rates are resampled with linear interpolation before summation.
package mixer
