package asr

import (
	"sort"
	"strings"
)

// Frame statuses on the upload side.
const (
	statusFirst = 0
	statusMid   = 1
	statusLast  = 2
)

const audioFormat = "audio/L16;rate=16000"

// clientFrame is one upload message. The first frame carries the common
// and business sections; later frames carry data only.
type clientFrame struct {
	Common   *commonParams   `json:"common,omitempty"`
	Business *businessParams `json:"business,omitempty"`
	Data     frameData       `json:"data"`
}

type commonParams struct {
	AppID string `json:"app_id"`
}

type businessParams struct {
	Language string `json:"language"`
	Domain   string `json:"domain"`
	Accent   string `json:"accent"`
	// dwa=wpgs enables progressive results: partial hypotheses arrive
	// as append/replace segments instead of one blob at the end.
	Dwa string `json:"dwa"`
}

type frameData struct {
	Status   int    `json:"status"`
	Format   string `json:"format"`
	Encoding string `json:"encoding"`
	Audio    string `json:"audio"`
}

// serverMessage is the envelope of every downstream message.
type serverMessage struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Sid     string      `json:"sid"`
	Data    *serverData `json:"data"`
}

type serverData struct {
	Status int           `json:"status"`
	Result *serverResult `json:"result"`
}

// serverResult is one hypothesis segment. Sn orders segments; with
// pgs="rpl" the segment supersedes the Rg range of earlier segments.
type serverResult struct {
	Sn  int          `json:"sn"`
	Pgs string       `json:"pgs"`
	Rg  []int        `json:"rg"`
	Ws  []resultWord `json:"ws"`
}

type resultWord struct {
	Cw []resultCandidate `json:"cw"`
}

type resultCandidate struct {
	W string `json:"w"`
}

func (r *serverResult) text() string {
	var b strings.Builder
	for _, w := range r.Ws {
		for _, c := range w.Cw {
			b.WriteString(c.W)
		}
	}
	return b.String()
}

// transcript accumulates progressive segments into the full current
// hypothesis. Segments are keyed by sn; a replace directive removes the
// segments in its range before the new one is applied.
type transcript struct {
	segs map[int]string
}

func newTranscript() *transcript {
	return &transcript{segs: make(map[int]string)}
}

// apply folds one result in and returns the full hypothesis so far.
func (t *transcript) apply(r *serverResult) string {
	if r != nil {
		if r.Pgs == "rpl" && len(r.Rg) == 2 {
			for sn := r.Rg[0]; sn <= r.Rg[1]; sn++ {
				delete(t.segs, sn)
			}
		}
		t.segs[r.Sn] = r.text()
	}
	return t.String()
}

// String joins surviving segments in sn order.
func (t *transcript) String() string {
	sns := make([]int, 0, len(t.segs))
	for sn := range t.segs {
		sns = append(sns, sn)
	}
	sort.Ints(sns)

	var b strings.Builder
	for _, sn := range sns {
		b.WriteString(t.segs[sn])
	}
	return b.String()
}
