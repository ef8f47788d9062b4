package register

import "fmt"

// Label names the transition an execution causes on a trader's position.
// The labels are part of the settlement event stream and must be stable
// across versions.
type Label string

const (
	None                        Label = "None"
	OpenLongPosition            Label = "OpenLongPosition"
	OpenShortPosition           Label = "OpenShortPosition"
	LongPosIncreased            Label = "LongPosIncreased"
	ShortPosIncreased           Label = "ShortPosIncreased"
	LongPosNettedPartly         Label = "LongPosNettedPartly"
	ShortPosNettedPartly        Label = "ShortPosNettedPartly"
	LongPosNetted               Label = "LongPosNetted"
	ShortPosNetted              Label = "ShortPosNetted"
	OpenShortPosByLongPosNetted Label = "OpenShortPosByLongPosNetted"
	OpenLongPosByShortPosNetted Label = "OpenLongPosByShortPosNetted"
)

// Classify maps a signed position transition to its label. Every reachable
// (old, new) pair has exactly one label; an unchanged nonzero position is not
// a transition and is rejected.
func Classify(oldSize, newSize int64) (Label, error) {
	switch {
	case oldSize == 0 && newSize == 0:
		return None, nil
	case oldSize == 0 && newSize > 0:
		return OpenLongPosition, nil
	case oldSize == 0 && newSize < 0:
		return OpenShortPosition, nil
	case oldSize > 0 && newSize > oldSize:
		return LongPosIncreased, nil
	case oldSize < 0 && newSize < oldSize:
		return ShortPosIncreased, nil
	case oldSize > 0 && newSize > 0 && newSize < oldSize:
		return LongPosNettedPartly, nil
	case oldSize < 0 && newSize < 0 && newSize > oldSize:
		return ShortPosNettedPartly, nil
	case oldSize > 0 && newSize == 0:
		return LongPosNetted, nil
	case oldSize < 0 && newSize == 0:
		return ShortPosNetted, nil
	case oldSize > 0 && newSize < 0:
		return OpenShortPosByLongPosNetted, nil
	case oldSize < 0 && newSize > 0:
		return OpenLongPosByShortPosNetted, nil
	default:
		return None, fmt.Errorf("no transition from %d to %d", oldSize, newSize)
	}
}
