// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package dice answers a "roll" trigger that parses and evaluates
// tabletop-style dice notation ("2d6", "1d20+3", "4d4-1") and replies
// with the individual rolls and total.
package dice

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/tinyreef/aib"
	"github.com/tinyreef/aib/component"
	"github.com/tinyreef/aib/trigger"
)

const maxDice = 100
const maxSides = 1000

var notationPattern = regexp.MustCompile(`(?i)^(\d*)d(\d+)([+-]\d+)?$`)

// Plugin has no state of its own; each roll is independent.
type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string      { return "dice" }
func (p *Plugin) InstallAs() string { return "dice" }

func (p *Plugin) Register(_ *aib.Context, _ component.Config, r *component.Registrar[*aib.Context]) error {
	return r.Triggers.Observe("roll", trigger.AutoHelpNoArgs(rollDoc, p.roll), trigger.Doc(rollDoc))
}

const rollDoc = "<NdM[+K|-K]> :: roll N M-sided dice, optionally adding or subtracting K"

func (p *Plugin) roll(_ *aib.Context, call *trigger.Call) {
	if call.Msg.Reply == nil {
		return
	}
	if len(call.Args) == 0 {
		return
	}

	count, sides, modifier, err := parseNotation(call.Args[0])
	if err != nil {
		call.Msg.Reply(fmt.Sprintf("%s: %v", call.Msg.Sender.Nick, err))
		return
	}

	rolls := make([]int, count)
	total := modifier
	for i := range rolls {
		rolls[i] = rand.Intn(sides) + 1
		total += rolls[i]
	}

	call.Msg.Reply(fmt.Sprintf("%s rolled %s: %s = %d", call.Msg.Sender.Nick, call.Args[0], formatRolls(rolls, modifier), total))
}

// parseNotation parses "NdM", "NdM+K", or "NdM-K" notation. N defaults to
// 1 when omitted ("d20").
func parseNotation(s string) (count, sides, modifier int, err error) {
	match := notationPattern.FindStringSubmatch(s)
	if match == nil {
		return 0, 0, 0, fmt.Errorf("%q isn't dice notation, try NdM or NdM+K", s)
	}

	count = 1
	if match[1] != "" {
		count, err = strconv.Atoi(match[1])
		if err != nil {
			return 0, 0, 0, err
		}
	}
	sides, err = strconv.Atoi(match[2])
	if err != nil {
		return 0, 0, 0, err
	}
	if match[3] != "" {
		modifier, err = strconv.Atoi(match[3])
		if err != nil {
			return 0, 0, 0, err
		}
	}

	if count < 1 || count > maxDice {
		return 0, 0, 0, fmt.Errorf("dice count must be between 1 and %d", maxDice)
	}
	if sides < 2 || sides > maxSides {
		return 0, 0, 0, fmt.Errorf("sides must be between 2 and %d", maxSides)
	}
	return count, sides, modifier, nil
}

func formatRolls(rolls []int, modifier int) string {
	parts := make([]string, len(rolls))
	for i, r := range rolls {
		parts[i] = strconv.Itoa(r)
	}
	s := "[" + strings.Join(parts, ", ") + "]"
	switch {
	case modifier > 0:
		s += fmt.Sprintf(" +%d", modifier)
	case modifier < 0:
		s += fmt.Sprintf(" %d", modifier)
	}
	return s
}
