// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package trigger implements command-word dispatch on inbound PRIVMSGs:
// tokenising the message into a trigger word plus positional/keyword
// arguments, and routing it to handlers registered for that word. It is
// layered directly on package event's observer-list machinery, the way
// the framework's other dispatch tables are.
package trigger

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/tinyreef/aib/event"
	"github.com/tinyreef/aib/ircmsg"
)

// Call is the payload delivered to a trigger handler.
type Call struct {
	Msg *ircmsg.Message

	// Word is the trigger word as matched, rewritten by a SubCommand
	// filter to "<trigger> <sub>" when one consumes args[0].
	Word string

	Args     []string
	Kwargs   map[string]string
	Unparsed string
}

// Handler observes one trigger word.
type Handler[C any] func(ctx C, call *Call)

// meta is registration-time metadata a Handler can't otherwise carry,
// since Go functions have no attached docstring.
type meta struct {
	doc  string
	subs []string
}

// Option attaches metadata to a Handler at Observe time.
type Option func(*meta)

// Doc sets the text the help trigger shows for this handler. A handler
// with no Doc is hidden from both the compact and long-form listings.
func Doc(s string) Option { return func(m *meta) { m.doc = s } }

// Subs records the sub-command names a SubCommand-filtered handler
// answers to, so long-form help can enumerate "<word> <sub> doc" lines.
func Subs(names ...string) Option {
	return func(m *meta) { m.subs = append(m.subs, names...) }
}

func handlerID(fn any) uintptr { return reflect.ValueOf(fn).Pointer() }

type entry[C any] struct {
	fn   Handler[C]
	meta meta
}

// Triggers is the command-word dispatch table for one runtime. Words are
// case-sensitive, unlike package event's case-insensitive event names.
type Triggers[C any] struct {
	prefix  string
	botNick func() string

	mu      sync.Mutex
	words   map[string][]*entry[C]
	adapted map[uintptr]event.Observer[C] // Handler identity -> installed event.Observer; recorded by Observe, not read elsewhere
	events  map[string]*event.Event[C]
}

// New creates a trigger table with the given prefix (e.g. "!") and a
// thunk returning the bot's current nick, used to recognise
// "<botnick>: word ..." addressing. It installs the built-in help
// trigger.
func New[C any](prefix string, botNick func() string) *Triggers[C] {
	t := &Triggers[C]{
		prefix:  prefix,
		botNick: botNick,
		words:   make(map[string][]*entry[C]),
		adapted: make(map[uintptr]event.Observer[C]),
		events:  make(map[string]*event.Event[C]),
	}
	t.installHelp()
	return t
}

func (t *Triggers[C]) eventFor(word string) *event.Event[C] {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.events[word]
	if !ok {
		e = &event.Event[C]{}
		t.events[word] = e
	}
	return e
}

// Observe registers fn to fire whenever word is invoked.
func (t *Triggers[C]) Observe(word string, fn Handler[C], opts ...Option) error {
	var m meta
	for _, apply := range opts {
		apply(&m)
	}

	wrapped := func(ctx C, args ...any) {
		if len(args) != 1 {
			return
		}
		call, ok := args[0].(*Call)
		if !ok {
			return
		}
		fn(ctx, call)
	}

	if err := t.eventFor(word).Observe(wrapped); err != nil {
		return err
	}

	t.mu.Lock()
	t.words[word] = append(t.words[word], &entry[C]{fn: fn, meta: m})
	t.adapted[handlerID(fn)] = wrapped
	t.mu.Unlock()
	return nil
}

// List returns every trigger word with at least one registered handler.
func (t *Triggers[C]) List() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.words))
	for w := range t.words {
		names = append(names, w)
	}
	return names
}

// Visible reports whether word has at least one handler carrying a
// non-empty Doc.
func (t *Triggers[C]) Visible(word string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.words[word] {
		if e.meta.doc != "" {
			return true
		}
	}
	return false
}

// docsFor returns the (doc, subs) pairs for word's handlers that carry a
// doc, in registration order.
func (t *Triggers[C]) docsFor(word string) []meta {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []meta
	for _, e := range t.words[word] {
		if e.meta.doc != "" {
			out = append(out, e.meta)
		}
	}
	return out
}

// Dispatch examines msg and, if it is an activated trigger candidate with
// a registered word, tokenises and fires it. It is a no-op for anything
// else, including PRIVMSGs whose word isn't registered.
func (t *Triggers[C]) Dispatch(ctx C, msg *ircmsg.Message) {
	word, tail, ok := t.activate(msg)
	if !ok {
		return
	}

	t.mu.Lock()
	e, registered := t.events[word]
	t.mu.Unlock()
	if !registered {
		return
	}

	args, kwargs := Parse(tail)
	msg.Unparsed = tail
	e.Fire(ctx, &Call{Msg: msg, Word: word, Args: args, Kwargs: kwargs, Unparsed: tail})
}

// activate applies the activation rule (prefixed, addressed, or private)
// and splits the remainder into (word, tail).
func (t *Triggers[C]) activate(msg *ircmsg.Message) (word, tail string, ok bool) {
	if msg == nil || msg.Kind != "PRIVMSG" {
		return "", "", false
	}

	text := strings.TrimSpace(msg.Text)
	address := ""
	if t.botNick != nil {
		if nick := t.botNick(); nick != "" {
			address = nick + ":"
		}
	}

	switch {
	case t.prefix != "" && strings.HasPrefix(text, t.prefix):
		text = strings.TrimPrefix(text, t.prefix)
	case address != "" && len(text) >= len(address) && strings.EqualFold(text[:len(address)], address):
		text = strings.TrimSpace(text[len(address):])
	case msg.Channel == "":
		// private message: no stripping required
	default:
		return "", "", false
	}

	fields := strings.SplitN(text, " ", 2)
	word = strings.TrimLeft(fields[0], t.prefix)
	if word == "" {
		return "", "", false
	}
	if len(fields) == 2 {
		tail = strings.TrimSpace(fields[1])
	}
	return word, tail, true
}

// Parse tokenises tail into positional arguments and keyword flags/values.
//
// Keywords are "-name" or "--name", optionally followed by "=value"; a
// keyword with no "=value" is a boolean flag (value "true", tracked via
// Kwargs having that key present). Positional tokens are barewords or
// '/"-quoted strings, where the matching quote character may be escaped
// as \" or \' inside the quotes.
func Parse(tail string) ([]string, map[string]string) {
	args := []string{}
	kwargs := map[string]string{}

	s := tail
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			break
		}

		if s[0] == '-' {
			name, rest, hasValue := scanKeywordName(s)
			if name != "" {
				if !hasValue {
					kwargs[name] = "true"
					s = rest
					continue
				}
				value, rest2 := scanArg(rest)
				kwargs[name] = value
				s = rest2
				continue
			}
		}

		value, rest := scanArg(s)
		args = append(args, value)
		s = rest
	}
	return args, kwargs
}

// scanKeywordName recognises a leading "-name" or "--name", optionally
// followed by "=". It returns the lowercase name, the remainder of s
// after the name (and "=" if present), and whether an "=value" follows.
func scanKeywordName(s string) (name, rest string, hasValue bool) {
	i := 0
	for i < len(s) && s[i] == '-' {
		i++
	}
	if i == 0 || i > 2 || i >= len(s) {
		return "", s, false
	}
	start := i
	if !isNameStart(s[i]) {
		return "", s, false
	}
	i++
	for i < len(s) && isNameRune(s[i]) {
		i++
	}
	name = strings.ToLower(s[start:i])

	j := i
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	if j < len(s) && s[j] == '=' {
		j++
		for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
			j++
		}
		return name, s[j:], true
	}
	return name, s[i:], false
}

func isNameStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameRune(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9') || c == '_'
}

// scanArg consumes one positional token: a quoted string (with escaped
// matching-quote support) or a run of non-whitespace, and returns it
// along with the unconsumed remainder of s.
func scanArg(s string) (value, rest string) {
	if s == "" {
		return "", ""
	}
	if s[0] == '\'' || s[0] == '"' {
		quote := s[0]
		var b strings.Builder
		i := 1
		for i < len(s) {
			if s[i] == '\\' && i+1 < len(s) && s[i+1] == quote {
				b.WriteByte(quote)
				i += 2
				continue
			}
			if s[i] == quote {
				i++
				break
			}
			b.WriteByte(s[i])
			i++
		}
		return b.String(), strings.TrimLeft(s[i:], " \t")
	}

	sp := strings.IndexAny(s, " \t")
	if sp < 0 {
		return s, ""
	}
	return s[:sp], strings.TrimLeft(s[sp:], " \t")
}

// ChannelRestriction returns a filter limiting fn to firing when msg.Channel
// is in channels (case-insensitive), or additionally for private messages
// when allowPrivate is set.
func ChannelRestriction[C any](channels []string, allowPrivate bool, fn Handler[C]) Handler[C] {
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		set[strings.ToLower(c)] = struct{}{}
	}
	return func(ctx C, call *Call) {
		if call.Msg.Channel == "" {
			if allowPrivate {
				fn(ctx, call)
			}
			return
		}
		if _, ok := set[call.Msg.Channel]; ok {
			fn(ctx, call)
		}
	}
}

// PrivateOnly returns a filter limiting fn to private messages.
func PrivateOnly[C any](fn Handler[C]) Handler[C] {
	return func(ctx C, call *Call) {
		if call.Msg.Channel == "" {
			fn(ctx, call)
		}
	}
}

// SenderIgnore returns a filter suppressing fn when the sending nick is
// in ignored (checked dynamically, so the list can change at runtime).
func SenderIgnore[C any](ignored func() []string, fn Handler[C]) Handler[C] {
	return func(ctx C, call *Call) {
		for _, n := range ignored() {
			if strings.EqualFold(n, call.Msg.Sender.Nick) {
				return
			}
		}
		fn(ctx, call)
	}
}

// SubCommand returns a filter firing fn only when args[0] (case
// insensitive) is in subs; args[0] is consumed and the trigger word is
// rewritten to "<word> <sub>" before fn runs.
func SubCommand[C any](subs []string, fn Handler[C]) Handler[C] {
	set := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		set[strings.ToLower(s)] = struct{}{}
	}
	return func(ctx C, call *Call) {
		if len(call.Args) == 0 {
			return
		}
		sub := strings.ToLower(call.Args[0])
		if _, ok := set[sub]; !ok {
			return
		}
		next := *call
		next.Word = call.Word + " " + sub
		next.Args = call.Args[1:]
		fn(ctx, &next)
	}
}

// NoSub returns a filter suppressing fn when args[0] (case insensitive)
// is in subs.
func NoSub[C any](subs []string, fn Handler[C]) Handler[C] {
	set := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		set[strings.ToLower(s)] = struct{}{}
	}
	return func(ctx C, call *Call) {
		if len(call.Args) > 0 {
			if _, ok := set[strings.ToLower(call.Args[0])]; ok {
				return
			}
		}
		fn(ctx, call)
	}
}

// AutoHelp returns a filter replying with doc, prefixed by the trigger
// word, whenever kwargs["help"] is set or args[0] == "help"; otherwise it
// invokes fn normally.
func AutoHelp[C any](doc string, fn Handler[C]) Handler[C] {
	return func(ctx C, call *Call) {
		if wantsHelp(call) {
			replyDoc(call, doc)
			return
		}
		fn(ctx, call)
	}
}

// AutoHelpNoArgs is AutoHelp, but also replies with doc when both Args
// and Kwargs are empty.
func AutoHelpNoArgs[C any](doc string, fn Handler[C]) Handler[C] {
	return func(ctx C, call *Call) {
		if wantsHelp(call) || (len(call.Args) == 0 && len(call.Kwargs) == 0) {
			replyDoc(call, doc)
			return
		}
		fn(ctx, call)
	}
}

func wantsHelp(call *Call) bool {
	if _, ok := call.Kwargs["help"]; ok {
		return true
	}
	return len(call.Args) > 0 && strings.EqualFold(call.Args[0], "help")
}

func replyDoc(call *Call, doc string) {
	if call.Msg.Reply == nil {
		return
	}
	call.Msg.Reply(fmt.Sprintf("%s %s", call.Word, doc))
}

// maxLineBytes is the IRC protocol's 512-byte line limit, less the
// trailing CRLF the transport appends.
const maxLineBytes = 510

func (t *Triggers[C]) installHelp() {
	t.Observe("help", func(ctx C, call *Call) {
		words := call.Args
		if len(words) == 0 {
			words = t.List()
		}

		_, wantsFull := call.Kwargs["full"]
		_, wantsList := call.Kwargs["list"]

		// In a channel with no explicit commands named, default to the
		// compact listing unless --full was explicitly requested.
		if call.Msg.Channel != "" && len(call.Args) == 0 && !wantsFull {
			wantsList = true
		}

		if wantsList && !wantsFull {
			t.replyCompactHelp(call, words)
		} else {
			t.replyLongHelp(call, words)
		}
	}, Doc("[<command>]+ [--list|--full] :: get docs"))
}

func (t *Triggers[C]) replyCompactHelp(call *Call, words []string) {
	if call.Msg.Reply == nil {
		return
	}
	prefixLen := len(fmt.Sprintf("PRIVMSG %s :", call.Msg.ReplyTarget))

	lines := [][]string{{"Command List:"}}
	size := func(line []string) int {
		n := 0
		for _, w := range line {
			n += len(w) + 1
		}
		return n
	}
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)
	for _, w := range sorted {
		if !t.Visible(w) {
			continue
		}
		last := lines[len(lines)-1]
		if prefixLen+size(last)+len(w)+1 <= maxLineBytes {
			lines[len(lines)-1] = append(last, w)
		} else {
			lines = append(lines, []string{w})
		}
	}
	for _, line := range lines {
		call.Msg.Reply(strings.Join(line, " "))
	}
}

func (t *Triggers[C]) replyLongHelp(call *Call, words []string) {
	if call.Msg.Reply == nil {
		return
	}
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)
	for _, w := range sorted {
		for _, m := range t.docsFor(w) {
			if len(m.subs) == 0 {
				call.Msg.Reply(fmt.Sprintf("%s %s", w, m.doc))
				continue
			}
			for _, sub := range m.subs {
				call.Msg.Reply(fmt.Sprintf("%s %s %s", w, sub, m.doc))
			}
		}
	}
}
