package headmask

import (
	"context"

	"github.com/sirupsen/logrus"

	"facechanger/internal/config"
	"facechanger/internal/entity"
	"facechanger/internal/geometry"
)

// Segmentation placement in the cascade.
const (
	SegmentOff          = "off"
	SegmentBeforePerson = "before_person"
	SegmentAfterPerson  = "after_person"
)

const (
	landmarkMinVisibility = 0.25
	minPersonHeadSide     = 32
)

// Options holds the cascade constants.
type Options struct {
	Margin              float64
	MinSize             int
	HeadFromBodyRatio   float64
	PersonWidthScale    float64
	PersonHeadTopFrac   float64
	PersonExtraUpFrac   float64
	FaceMinConfidence   float64
	PersonMinConfidence float64

	SegmentMode       string
	SegmentPrompt     string
	SegmentThreshold  int
	SegmentExtendUp   float64
	SegmentExtendDown float64
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		Margin:              0.30,
		MinSize:             0,
		HeadFromBodyRatio:   0.20,
		PersonWidthScale:    0.55,
		PersonHeadTopFrac:   0.23,
		PersonExtraUpFrac:   0.15,
		FaceMinConfidence:   0.40,
		PersonMinConfidence: 0.35,
		SegmentMode:         SegmentOff,
		SegmentPrompt:       "Head",
		SegmentThreshold:    127,
		SegmentExtendUp:     0.20,
		SegmentExtendDown:   0.10,
	}
}

// OptionsFromConfig reads the cascade constants from process config.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Margin:              cfg.HeadMaskMargin,
		MinSize:             cfg.HeadMaskMinSize,
		HeadFromBodyRatio:   cfg.HeadFromBodyRatio,
		PersonWidthScale:    cfg.HeadPersonWidthScale,
		PersonHeadTopFrac:   cfg.HeadPersonHeadTopFrac,
		PersonExtraUpFrac:   cfg.HeadPersonExtraUpFrac,
		FaceMinConfidence:   cfg.HeadFaceMinConfidence,
		PersonMinConfidence: cfg.HeadPersonMinConfidence,
		SegmentMode:         cfg.SegmentMode,
		SegmentPrompt:       cfg.SegmentPrompt,
		SegmentThreshold:    cfg.SegmentThreshold,
		SegmentExtendUp:     cfg.SegmentExtendUp,
		SegmentExtendDown:   cfg.SegmentExtendDown,
	}
}

// Detectors groups the optional collaborators. Any of them may be nil, in
// which case that step is skipped.
type Detectors struct {
	Face      FaceDetector
	Pose      PoseDetector
	Person    PersonDetector
	Segmenter Segmenter
}

// Result is the winning strategy and its box in source pixels.
type Result struct {
	Strategy string       `json:"strategy"`
	Box      geometry.Box `json:"box"`
}

type step struct {
	name string
	run  func(ctx context.Context, src Source) (geometry.Box, bool)
}

// Locator runs the head-locator cascade. Steps are tried in a fixed order and
// the first hit wins; the centre fallback always succeeds.
type Locator struct {
	opts      Options
	detectors Detectors
	steps     []step

	margin            geometry.Ratio
	headRatio         geometry.Ratio
	personWidthScale  geometry.Ratio
	personHeadTopFrac geometry.Ratio
	personExtraUpFrac geometry.Ratio
}

func NewLocator(opts Options, detectors Detectors) *Locator {
	l := &Locator{
		opts:              opts,
		detectors:         detectors,
		margin:            geometry.RatioOf(opts.Margin),
		headRatio:         geometry.RatioOf(opts.HeadFromBodyRatio),
		personWidthScale:  geometry.RatioOf(opts.PersonWidthScale),
		personHeadTopFrac: geometry.RatioOf(opts.PersonHeadTopFrac),
		personExtraUpFrac: geometry.RatioOf(opts.PersonExtraUpFrac),
	}

	l.steps = append(l.steps,
		step{entity.MaskStrategyFace, l.fromFace},
		step{entity.MaskStrategyPose, l.fromPose},
	)
	segment := step{entity.MaskStrategySegment, l.fromSegmentation}
	person := step{entity.MaskStrategyPerson, l.fromPerson}
	switch opts.SegmentMode {
	case SegmentBeforePerson:
		l.steps = append(l.steps, segment, person)
	case SegmentAfterPerson:
		l.steps = append(l.steps, person, segment)
	default:
		l.steps = append(l.steps, person)
	}
	return l
}

// Strategies lists the step order, ending with the centre fallback.
func (l *Locator) Strategies() []string {
	names := make([]string, 0, len(l.steps)+1)
	for _, s := range l.steps {
		names = append(names, s.name)
	}
	return append(names, entity.MaskStrategyCenter)
}

// Locate never fails: detector errors count as misses and the centre
// fallback covers every image with a positive area.
func (l *Locator) Locate(ctx context.Context, src Source) Result {
	for _, s := range l.steps {
		box, ok := s.run(ctx, src)
		if !ok {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"strategy": s.name,
			"box":      box.String(),
			"width":    src.Width,
			"height":   src.Height,
		}).Debug("head_located")
		return Result{Strategy: s.name, Box: box}
	}
	box := l.centerFallback(src)
	logrus.WithFields(logrus.Fields{
		"strategy": entity.MaskStrategyCenter,
		"box":      box.String(),
	}).Debug("head_located")
	return Result{Strategy: entity.MaskStrategyCenter, Box: box}
}

func (l *Locator) square(b geometry.Box, src Source) geometry.Box {
	return geometry.SquareWithMargin(b, src.Width, src.Height, l.margin, l.opts.MinSize)
}

func (l *Locator) fromFace(ctx context.Context, src Source) (geometry.Box, bool) {
	if l.detectors.Face == nil {
		return geometry.Box{}, false
	}
	faces, err := l.detectors.Face.DetectFaces(ctx, src)
	if err != nil {
		logDetectorMiss(entity.MaskStrategyFace, err)
		return geometry.Box{}, false
	}
	best, ok := bestDetection(faces, l.opts.FaceMinConfidence)
	if !ok {
		return geometry.Box{}, false
	}
	return l.square(best.Box, src), true
}

func (l *Locator) fromPose(ctx context.Context, src Source) (geometry.Box, bool) {
	if l.detectors.Pose == nil {
		return geometry.Box{}, false
	}
	landmarks, err := l.detectors.Pose.DetectPose(ctx, src)
	if err != nil {
		logDetectorMiss(entity.MaskStrategyPose, err)
		return geometry.Box{}, false
	}
	box, ok := poseHeadBox(landmarks, src.Width, src.Height)
	if !ok {
		return geometry.Box{}, false
	}
	return l.square(box, src), true
}

// poseHeadBox bounds the visible face landmarks, or estimates a head above
// the shoulder midpoint when only shoulders are visible.
func poseHeadBox(landmarks []Landmark, width, height int) (geometry.Box, bool) {
	byIndex := make(map[int]Landmark, len(landmarks))
	for _, lm := range landmarks {
		byIndex[lm.Index] = lm
	}
	visible := func(indices []int) [][2]int {
		var pts [][2]int
		for _, i := range indices {
			lm, ok := byIndex[i]
			if !ok || lm.Visibility <= landmarkMinVisibility {
				continue
			}
			pts = append(pts, [2]int{int(lm.X * float64(width)), int(lm.Y * float64(height))})
		}
		return pts
	}

	pts := visible(headLandmarks)
	if len(pts) == 0 {
		shoulders := visible(shoulderLandmarks)
		if len(shoulders) == 0 {
			return geometry.Box{}, false
		}
		var sx, sy, sw int
		if len(shoulders) == 2 {
			sx = (shoulders[0][0] + shoulders[1][0]) / 2
			sy = (shoulders[0][1] + shoulders[1][1]) / 2
			sw = absInt(shoulders[0][0] - shoulders[1][0])
		} else {
			sx, sy = shoulders[0][0], shoulders[0][1]
			sw = width / 4
		}
		side := sw * 9 / 10
		x1 := sx - side/2
		y1 := sy - side*11/10
		return geometry.Box{X1: x1, Y1: y1, X2: x1 + side, Y2: y1 + side}, true
	}

	x1, y1 := pts[0][0], pts[0][1]
	x2, y2 := x1, y1
	for _, p := range pts[1:] {
		x1 = minInt(x1, p[0])
		x2 = maxInt(x2, p[0])
		y1 = minInt(y1, p[1])
		y2 = maxInt(y2, p[1])
	}
	if y2-y1 < 10 {
		y2 = y1 + (x2 - x1)
	}
	return geometry.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, true
}

func (l *Locator) fromPerson(ctx context.Context, src Source) (geometry.Box, bool) {
	if l.detectors.Person == nil {
		return geometry.Box{}, false
	}
	persons, err := l.detectors.Person.DetectPersons(ctx, src)
	if err != nil {
		logDetectorMiss(entity.MaskStrategyPerson, err)
		return geometry.Box{}, false
	}
	best, ok := bestDetection(persons, l.opts.PersonMinConfidence)
	if !ok {
		return geometry.Box{}, false
	}
	return l.square(l.personHeadBox(best.Box), src), true
}

// personHeadBox places a head square whose bottom sits near the shoulder line
// of the person box, extended upward for hair seen from behind.
func (l *Locator) personHeadBox(p geometry.Box) geometry.Box {
	pw := maxInt(1, p.Width())
	ph := maxInt(1, p.Height())

	headBottom := p.Y1 + l.personHeadTopFrac.Of(ph)
	side := maxInt(minPersonHeadSide, l.personWidthScale.Of(pw), l.headRatio.Of(ph))
	cx := p.X1 + pw/2

	y2 := headBottom
	y1 := y2 - side
	y1 = maxInt(0, y1-l.personExtraUpFrac.Of(side))

	x1 := cx - side/2
	return geometry.Box{X1: x1, Y1: y1, X2: x1 + side, Y2: y2}
}

func (l *Locator) fromSegmentation(ctx context.Context, src Source) (geometry.Box, bool) {
	if l.detectors.Segmenter == nil || src.URL == "" {
		return geometry.Box{}, false
	}
	data, err := l.detectors.Segmenter.Segment(ctx, src.URL, l.opts.SegmentPrompt)
	if err != nil {
		logDetectorMiss(entity.MaskStrategySegment, err)
		return geometry.Box{}, false
	}
	box, err := SegmentationBox(data, src.Width, src.Height, l.opts.SegmentThreshold)
	if err != nil {
		logDetectorMiss(entity.MaskStrategySegment, err)
		return geometry.Box{}, false
	}
	if box.Empty() {
		return geometry.Box{}, false
	}
	return ExtendVertical(box, src.Width, src.Height, l.opts.SegmentExtendUp, l.opts.SegmentExtendDown), true
}

// ExtendVertical grows the box upward and downward by fractions of its height
// and clamps it to the image.
func ExtendVertical(b geometry.Box, width, height int, up, down float64) geometry.Box {
	h := b.Height()
	b.Y1 -= geometry.RatioOf(up).Of(h)
	b.Y2 += geometry.RatioOf(down).Of(h)
	return geometry.Clamp(b, width, height)
}

// centerFallback is a square of half the shorter side, centred horizontally
// and biased to the upper third.
func (l *Locator) centerFallback(src Source) geometry.Box {
	side := minInt(src.Width, src.Height) / 2
	cx := src.Width / 2
	cy := src.Height * 35 / 100
	raw := geometry.Box{X1: cx - side/2, Y1: cy - side/2, X2: cx + side/2, Y2: cy + side/2}
	return l.square(raw, src)
}

func logDetectorMiss(strategy string, err error) {
	logrus.WithFields(logrus.Fields{
		"strategy": strategy,
	}).WithError(err).Warn("head_detector_failed")
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
