package detection

import (
	"image"
	"math"

	clipper "github.com/ctessum/go.clipper"
)

// Merge combines the given detections into a single new Detection of type
// typ.  The result has the union bounding box, the max confidence and the
// velocity of the first member that carries one.  Metadata is copied
// first-wins and the contributing types are recorded under MetaSources.
// Inputs are never modified.
func Merge(typ Type, dets ...Detection) Detection {

	if len(dets) == 0 {
		return Detection{Type: typ}
	}

	box := dets[0].BBox
	conf := dets[0].Confidence
	ts := dets[0].Timestamp
	var vel *Velocity
	haveContours := true
	sources := make([]Type, 0, len(dets))
	md := make(map[string]any)

	for _, d := range dets {
		box = box.Union(d.BBox)
		conf = math.Max(conf, d.Confidence)
		ts = math.Max(ts, d.Timestamp)

		if vel == nil && d.Velocity != nil {
			v := *d.Velocity
			vel = &v
		}

		if len(d.Contour) == 0 {
			haveContours = false
		}

		sources = appendSources(sources, d)

		for k, v := range d.Metadata {
			if k == MetaSources || k == MetaMergedCount {
				continue
			}
			if _, ok := md[k]; !ok {
				md[k] = v
			}
		}
	}

	md[MetaSources] = sources
	md[MetaMergedCount] = len(dets)

	out := Detection{
		BBox:       box,
		Centroid:   box.Center(),
		Area:       box.Area(),
		Confidence: conf,
		Timestamp:  ts,
		Type:       typ,
		Velocity:   vel,
		Metadata:   md,
	}

	if haveContours {
		out.Contour = UnionContours(contoursOf(dets)...)
	}

	return out
}

// appendSources records the producer types of d, expanding an earlier merge
func appendSources(sources []Type, d Detection) []Type {

	add := func(t Type) {
		for _, s := range sources {
			if s == t {
				return
			}
		}
		sources = append(sources, t)
	}

	if prior, ok := d.Metadata[MetaSources].([]Type); ok {
		for _, t := range prior {
			add(t)
		}
		return sources
	}

	add(d.Type)
	return sources
}

func contoursOf(dets []Detection) [][]image.Point {
	out := make([][]image.Point, len(dets))
	for i, d := range dets {
		out[i] = d.Contour
	}
	return out
}

// UnionContours returns the outline of the polygon union of the given
// contours.  When the union is disjoint the largest polygon is returned.
func UnionContours(contours ...[]image.Point) []image.Point {

	var paths clipper.Paths

	for _, c := range contours {
		if len(c) < 3 {
			continue
		}

		path := make(clipper.Path, 0, len(c))
		for _, pt := range c {
			path = append(path, &clipper.IntPoint{X: clipper.CInt(pt.X), Y: clipper.CInt(pt.Y)})
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		return nil
	}

	c := clipper.NewClipper(clipper.IoStrictlySimple)
	c.AddPaths(paths, clipper.PtSubject, true)

	solution, ok := c.Execute1(clipper.CtUnion, clipper.PftNonZero, clipper.PftNonZero)
	if !ok || len(solution) == 0 {
		return nil
	}

	best := solution[0]
	bestArea := polygonArea(best)

	for _, p := range solution[1:] {
		if a := polygonArea(p); a > bestArea {
			best, bestArea = p, a
		}
	}

	out := make([]image.Point, len(best))
	for i, pt := range best {
		out[i] = image.Pt(int(pt.X), int(pt.Y))
	}

	return out
}

// polygonArea is the absolute shoelace area of a closed path
func polygonArea(p clipper.Path) float64 {
	var sum float64
	for i := range p {
		j := (i + 1) % len(p)
		sum += float64(p[i].X)*float64(p[j].Y) - float64(p[j].X)*float64(p[i].Y)
	}
	return math.Abs(sum) / 2
}
