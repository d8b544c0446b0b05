package playback

import (
	"fmt"
	"time"

	"github.com/emacsmirror/gaplay/internal/app/response"
	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

// positionWatch remembers the last reported rounded duration and position.
type positionWatch struct {
	duration int64
	position int64
}

func newPositionWatch() positionWatch {
	return positionWatch{duration: -1, position: -1}
}

// WatchPosition reports "T pos/dur" while PLAYING, only when the rounded
// values changed since the last report. Reaching NULL forgets the last
// report.
func (c *Controller) WatchPosition() {
	if c.hasState(pipeline.StatePlaying) {
		dur, durOK := c.pipe.QueryDuration()
		pos, posOK := c.pipe.QueryPosition()
		if !durOK || !posOK {
			return
		}

		d, p := int64(-1), int64(-1)
		if dur >= 0 {
			d = roundSeconds(dur)
		}
		if pos >= 0 {
			p = roundSeconds(pos)
		}
		if d == c.watch.duration && p == c.watch.position {
			return
		}
		c.watch = positionWatch{duration: d, position: p}
		c.emit(response.New(response.TagTime, clockString(p)+"/"+clockString(d)))
		return
	}

	if c.hasState(pipeline.StateNull) {
		c.watch = newPositionWatch()
	}
}

// roundSeconds rounds d to the nearest second, halves up.
func roundSeconds(d time.Duration) int64 {
	n := int64(d) + int64(500*time.Millisecond)
	q := n / int64(time.Second)
	if n%int64(time.Second) < 0 {
		q--
	}
	return q
}

// secondsString renders seconds as "mm:ss", or "hh:mm:ss" past an hour.
func secondsString(sec int64) string {
	h, rest := divmod(sec, 3600)
	m, s := divmod(rest, 60)
	if h != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func clockString(sec int64) string {
	if sec < 0 {
		return "-1"
	}
	return secondsString(sec)
}

// divmod divides with the quotient rounded towards negative infinity.
func divmod(a, b int64) (int64, int64) {
	q, r := a/b, a%b
	if r != 0 && (r < 0) != (b < 0) {
		q--
		r += b
	}
	return q, r
}
