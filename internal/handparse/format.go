// Package handparse reads a hand-history text file and yields structured
// handmodel.Hand records. A regex-driven scanner holds its parse state in a
// struct, the same shape as a VRChat chat-log line walker, but here it
// consumes one complete file at a time rather than an open-ended streaming
// log, so there is no checkpoint/resume state to carry.
package handparse

import "regexp"

// Example input shape (one hand):
//
//	RC1001: Hold'em No Limit ($1/$2 USD) - 2024/01/15 10:30:00 ET
//	Table 'Azure Room 4' 6-max Seat #3 is the button
//	Seat 1: e3efcaed ($200 in chips)
//	Seat 2: 5641b4a0 ($200 in chips)
//	Seat 3: Hero ($200 in chips)
//	e3efcaed: posts small blind $1
//	5641b4a0: posts big blind $2
//	*** HOLE CARDS ***
//	Dealt to Hero [Ah Kd]
//	Hero: raises $4 to $6
//	e3efcaed: folds
//	5641b4a0: calls $4
//	*** FLOP *** [2h 7d Jc]
//	*** TURN *** [2h 7d Jc] [9s]
//	*** RIVER *** [2h 7d Jc 9s] [4h]
//	*** SUMMARY ***
//	Total pot $13 | Rake $0
//	Seat 1: e3efcaed (small blind) folded before Flop
//	Seat 2: 5641b4a0 (big blind)
//	Seat 3: Hero (button) collected ($13)
var (
	reHeader = regexp.MustCompile(
		`^(RC|OM|TM|HD|SG|MT|TT)\d+: [^(]+\(\$([0-9.]+)/\$([0-9.]+)(?: ([A-Z]{3}))?\) - (\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}) ET\s*$`)
	reHandID = regexp.MustCompile(`^((RC|OM|TM|HD|SG|MT|TT)\d+):`)
	reTable  = regexp.MustCompile(`^Table '([^']*)'\s+\d+-max(?:\s+Seat #(\d+) is the button)?\s*$`)
	reSeat   = regexp.MustCompile(`^Seat (\d+): (Hero|[a-f0-9]{6,8}) \(\$([0-9.]+) in chips\)\s*$`)
	reSBPost = regexp.MustCompile(`^(Hero|[a-f0-9]{6,8}): posts small blind \$[0-9.]+\s*$`)
	reBBPost = regexp.MustCompile(`^(Hero|[a-f0-9]{6,8}): posts big blind \$[0-9.]+\s*$`)
	reDealt  = regexp.MustCompile(`^Dealt to (Hero|[a-f0-9]{6,8}) \[([^\]]+)\]`)
	reStreet = regexp.MustCompile(`^\*\*\* (?:FLOP|TURN|RIVER) \*\*\*(?: \[[^\]]*\])? \[([^\]]+)\]\s*$`)

	reAnonToken = regexp.MustCompile(`^(Hero|[a-f0-9]{6,8})$`)
)

const timeLayout = "2006/01/02 15:04:05"

// IsHeaderLine reports whether line opens a new hand block. Exported for
// fixture generators and the intake watcher, which need to find hand
// boundaries without fully parsing.
func IsHeaderLine(line string) bool {
	return reHeader.MatchString(line)
}
