package arcsoft

import (
	"github.com/sirupsen/logrus"

	"github.com/video-system/go-camera-pp/pkg/sfl"
)

// mergeHDR fuses the bracketed exposures, weighting each pixel by how close
// it sits to mid-grey. Chroma comes from the reference (second) exposure.
func mergeHDR(src []sfl.Buffer, dst sfl.Buffer, _ any) error {
	in, out, err := frames(src, dst)
	if err != nil {
		return err
	}

	for i := range out.y {
		var sum, wsum int
		for _, f := range in {
			v := int(f.y[i])
			w := 256 - abs(2*v-255)
			sum += v * w
			wsum += w
		}
		out.y[i] = byte(sum / wsum)
	}

	ref := in[0]
	if len(in) > 1 {
		ref = in[1]
	}
	copy(out.uv, ref.uv)
	return nil
}

// mergeNight averages the burst to lower noise
func mergeNight(src []sfl.Buffer, dst sfl.Buffer, _ any) error {
	in, out, err := frames(src, dst)
	if err != nil {
		return err
	}
	n := len(in)
	for i := range out.y {
		sum := 0
		for _, f := range in {
			sum += int(f.y[i])
		}
		out.y[i] = byte(sum / n)
	}
	for i := range out.uv {
		sum := 0
		for _, f := range in {
			sum += int(f.uv[i])
		}
		out.uv[i] = byte(sum / n)
	}
	return nil
}

// ShotInfo is the sensor state anti-shake tunes itself from. Pass it with
// SetMetaInfo.
type ShotInfo struct {
	Sensitivity uint32
	ExposureNs  uint32
}

// Intensity maps sensor sensitivity to the anti-shake strength and the ISO
// the capture should be taken at
func Intensity(sensitivity uint32) (intensity int, iso uint32) {
	switch {
	case sensitivity < 200:
		return 5, 400
	case sensitivity < 400:
		return 6, 600
	case sensitivity < 600:
		return 7, 1000
	case sensitivity < 800:
		return 8, 1400
	}
	return 10, 1600
}

// mergeAntiShake keeps the sharpest frame of the burst
func mergeAntiShake(src []sfl.Buffer, dst sfl.Buffer, meta any, log *logrus.Entry) error {
	in, out, err := frames(src, dst)
	if err != nil {
		return err
	}

	if shot, ok := meta.(*ShotInfo); ok && shot != nil {
		intensity, iso := Intensity(shot.Sensitivity)
		log.Debugf("intensity(%d) iso(%d) exposure(%d)", intensity, iso, shot.ExposureNs)
	}

	best, bestScore := 0, -1
	for i, f := range in {
		if s := sharpness(f.y); s > bestScore {
			best, bestScore = i, s
		}
	}
	copy(out.y, in[best].y)
	copy(out.uv, in[best].uv)
	return nil
}

// sharpness sums the absolute difference of neighbouring luma samples
func sharpness(y []byte) int {
	s := 0
	for i := 1; i < len(y); i++ {
		s += abs(int(y[i]) - int(y[i-1]))
	}
	return s
}

// FlawlessConfig selects the beautify features. Pass it with SetMetaInfo.
type FlawlessConfig struct {
	FaceBeauty          bool
	FaceBeautyIntensity int // 0..100
}

// mergeFlawless softens skin by blending luma toward a horizontal box blur
func mergeFlawless(src []sfl.Buffer, dst sfl.Buffer, meta any) error {
	in, out, err := frames(src, dst)
	if err != nil {
		return err
	}
	f := in[0]

	strength := 0
	if cfg, ok := meta.(*FlawlessConfig); ok && cfg != nil && cfg.FaceBeauty {
		strength = min(max(cfg.FaceBeautyIntensity, 0), 100)
	}

	w := dst.Width
	for i := range out.y {
		v := int(f.y[i])
		if strength == 0 || w < 3 {
			out.y[i] = byte(v)
			continue
		}
		x := i % w
		l, r := v, v
		if x > 0 {
			l = int(f.y[i-1])
		}
		if x < w-1 {
			r = int(f.y[i+1])
		}
		blur := (l + v + r) / 3
		out.y[i] = byte(v + (blur-v)*strength/100)
	}
	copy(out.uv, f.uv)
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
