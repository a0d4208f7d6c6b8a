package resize

// Margins are the four outpaint borders, in pixels.
type Margins struct {
	Left  int `json:"left"`
	Right int `json:"right"`
	Up    int `json:"up"`
	Down  int `json:"down"`
}

// Zero reports whether no expansion is needed.
func (m Margins) Zero() bool {
	return m.Left == 0 && m.Right == 0 && m.Up == 0 && m.Down == 0
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// MinimalExpansion computes the smallest canvas that contains a baseW x baseH
// image and has exactly the targetW:targetH aspect ratio, with the padding
// split as evenly as possible on each axis.
//
// The target ratio is reduced to lowest terms (trW, trH); the canvas is
// k*(trW, trH) for the smallest integer k covering both base dimensions,
// i.e. k = max(ceil(baseW/trW), ceil(baseH/trH)).
func MinimalExpansion(baseW, baseH, targetW, targetH int) (newW, newH int, m Margins) {
	d := gcd(targetW, targetH)
	trW := targetW / d
	trH := targetH / d

	k := ceilDiv(baseW, trW)
	if kh := ceilDiv(baseH, trH); kh > k {
		k = kh
	}

	newW = k * trW
	newH = k * trH
	m.Left = (newW - baseW) / 2
	m.Right = newW - baseW - m.Left
	m.Up = (newH - baseH) / 2
	m.Down = newH - baseH - m.Up
	return newW, newH, m
}
