package main

import (
	"github.com/paulmach/orb"
)

//Segment 线段
type Segment struct {
	A, B orb.Point
}

//Bound 线段外包框
func (s Segment) Bound() orb.Bound {
	return orb.Bound{Min: s.A, Max: s.A}.Extend(s.B)
}

// cross returns the z component of (b-a)x(c-a).
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

//SegmentsCross 两线段是否相交,接触与共线重叠也算相交
func SegmentsCross(s1, s2 Segment) bool {
	if !RectsOverlap(s1.Bound(), s2.Bound()) {
		return false
	}

	d1 := cross(s1.A, s1.B, s2.A)
	d2 := cross(s1.A, s1.B, s2.B)
	d3 := cross(s2.A, s2.B, s1.A)
	d4 := cross(s2.A, s2.B, s1.B)

	return d1*d2 <= 0 && d3*d4 <= 0
}

//RectCrossesSegment 线段是否进入或接触矩形
func RectCrossesSegment(r orb.Bound, s Segment) bool {
	if RectContains(r, s.A) || RectContains(r, s.B) {
		return true
	}

	diagonal := Segment{r.Min, r.Max}
	anti := Segment{orb.Point{r.Min[0], r.Max[1]}, orb.Point{r.Max[0], r.Min[1]}}
	return SegmentsCross(diagonal, s) || SegmentsCross(anti, s)
}

//RectsOverlap 外包框是否重叠(含边界),用于整体剔除
func RectsOverlap(a, b orb.Bound) bool {
	return a.Min[0] <= b.Max[0] && b.Min[0] <= a.Max[0] &&
		a.Min[1] <= b.Max[1] && b.Min[1] <= a.Max[1]
}

//RectsOverlapStrict 外包框是否重叠(不含边界)
func RectsOverlapStrict(a, b orb.Bound) bool {
	return a.Min[0] < b.Max[0] && b.Min[0] < a.Max[0] &&
		a.Min[1] < b.Max[1] && b.Min[1] < a.Max[1]
}

//RectContains 点是否严格位于矩形内部
func RectContains(r orb.Bound, p orb.Point) bool {
	return RectsOverlapStrict(r, orb.Bound{Min: p, Max: p})
}
