package parser

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

type eventKind int

const (
	kindOther eventKind = iota
	kindText
	kindTool
	kindToolDone
	kindTerminal
)

// dialect describes one CLI's stream protocol: how to classify events and
// where the interesting fields live. Field locations are gjson paths.
type dialect struct {
	name     string
	cliLabel string // human-readable CLI name for error messages

	sessionPath string // path to the session identifier, checked on every event
	toolKey     string // metadata key for captured tool events

	classify func(ev gjson.Result) eventKind
	text     func(ev gjson.Result) string             // text carried by a kindText event
	result   func(term gjson.Result) string           // terminal event's aggregated text ("" when the dialect has none)
	metadata func(term gjson.Result, md map[string]any) // terminal-derived metadata fields
}

// ndjsonParser is the shared driver: it accumulates streamed events into a
// terminal result per the dialect table.
type ndjsonParser struct {
	d dialect
}

func (p *ndjsonParser) Name() string { return p.d.name }

func (p *ndjsonParser) Parse(stdout, stderr string) (*Response, error) {
	d := p.d

	var (
		events    []map[string]any
		fragments []string
		tools     []map[string]any
		toolsDone int
		terminal  *gjson.Result
		sessionID string
	)

	for _, ev := range scanEvents(stdout) {
		obj, _ := ev.Value().(map[string]any)
		events = append(events, obj)

		if sessionID == "" && d.sessionPath != "" {
			sessionID = ev.Get(d.sessionPath).String()
		}

		switch d.classify(ev) {
		case kindText:
			if text := strings.TrimSpace(d.text(ev)); text != "" {
				fragments = append(fragments, text)
			}
		case kindTool:
			tools = append(tools, obj)
		case kindToolDone:
			tools = append(tools, obj)
			toolsDone++
		case kindTerminal:
			// Last terminal event wins.
			term := ev
			terminal = &term
		}
	}

	content := ""
	if terminal != nil && d.result != nil {
		content = strings.TrimSpace(d.result(*terminal))
	}
	if content == "" && len(fragments) > 0 {
		content = strings.Join(fragments, "\n\n")
	}
	if content == "" {
		if errText := strings.TrimSpace(stderr); errText != "" {
			return nil, &ParseError{
				Msg:    fmt.Sprintf("%s returned no result", d.cliLabel),
				Stderr: errText,
			}
		}
		return nil, &ParseError{Msg: fmt.Sprintf("%s output did not contain a result", d.cliLabel)}
	}

	md := map[string]any{"events": events}
	if terminal != nil && d.metadata != nil {
		d.metadata(*terminal, md)
	}
	if sessionID != "" {
		md["session_id"] = sessionID
	}
	if len(tools) > 0 {
		md[d.toolKey] = tools
		md["tool_call_count"] = toolsDone
	}
	if errText := strings.TrimSpace(stderr); errText != "" {
		md["stderr"] = errText
	}

	return &Response{Content: content, Metadata: md}, nil
}

// scanEvents decodes every JSON object event from stdout. NDJSON input yields
// one event per non-blank line; a single JSON document (possibly
// pretty-printed across lines, as gemini and claude emit in non-streaming
// mode) yields one event. Lines that fail to decode or are not objects are
// skipped, tolerating interleaved diagnostic output.
func scanEvents(stdout string) []gjson.Result {
	trimmed := strings.TrimSpace(stdout)
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		if doc := gjson.Parse(trimmed); doc.IsObject() {
			return []gjson.Result{doc}
		}
	}

	var events []gjson.Result
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") || !gjson.Valid(line) {
			continue
		}
		if ev := gjson.Parse(line); ev.IsObject() {
			events = append(events, ev)
		}
	}
	return events
}

// joinedText flattens a gjson string or array-of-strings result, dropping
// blank entries.
func joinedText(res gjson.Result) string {
	if !res.IsArray() {
		return res.String()
	}
	var parts []string
	res.ForEach(func(_, v gjson.Result) bool {
		if text := strings.TrimSpace(v.String()); text != "" {
			parts = append(parts, text)
		}
		return true
	})
	return strings.Join(parts, "\n")
}

// put copies a field into metadata only when the protocol actually reported
// it; absent numeric fields are never synthesized.
func put(md map[string]any, key string, v gjson.Result) {
	if v.Exists() {
		md[key] = v.Value()
	}
}

// claudeDialect parses `claude -p --output-format stream-json` (also accepts
// the single-document `--output-format json` shape). Text arrives in
// assistant message content blocks; the "result" event terminates the run and
// carries the aggregated answer, timing, usage, and cost.
var claudeDialect = dialect{
	name:        "claude_json",
	cliLabel:    "Claude CLI",
	sessionPath: "session_id",
	toolKey:     "tool_calls",
	classify: func(ev gjson.Result) eventKind {
		switch ev.Get("type").String() {
		case "assistant":
			return kindText
		case "result":
			return kindTerminal
		}
		return kindOther
	},
	text: func(ev gjson.Result) string {
		return joinedText(ev.Get(`message.content.#(type=="text")#.text`))
	},
	result: func(term gjson.Result) string {
		return term.Get("result").String()
	},
	metadata: func(term gjson.Result, md map[string]any) {
		put(md, "duration_ms", term.Get("duration_ms"))
		put(md, "duration_api_ms", term.Get("duration_api_ms"))
		put(md, "num_turns", term.Get("num_turns"))
		put(md, "cost", term.Get("total_cost_usd"))
		md["is_error"] = term.Get("is_error").Bool()
		usage := term.Get("usage")
		if usage.Exists() {
			put(md, "input_tokens", usage.Get("input_tokens"))
			put(md, "output_tokens", usage.Get("output_tokens"))
			put(md, "cache_read", usage.Get("cache_read_input_tokens"))
			put(md, "cache_write", usage.Get("cache_creation_input_tokens"))
		}
	},
}

// geminiDialect parses `gemini -o json`, which emits one JSON document with
// the answer under "response" and per-model token usage under "stats".
var geminiDialect = dialect{
	name:        "gemini_json",
	cliLabel:    "Gemini CLI",
	sessionPath: "session_id",
	toolKey:     "tool_calls",
	classify: func(ev gjson.Result) eventKind {
		if ev.Get("response").Exists() {
			return kindTerminal
		}
		return kindOther
	},
	result: func(term gjson.Result) string {
		return term.Get("response").String()
	},
	metadata: func(term gjson.Result, md map[string]any) {
		stats := term.Get("stats")
		if !stats.Exists() {
			return
		}
		md["stats"] = stats.Value()
		var input, output, reasoning, cached int64
		stats.Get("models").ForEach(func(_, model gjson.Result) bool {
			tokens := model.Get("tokens")
			input += tokens.Get("prompt").Int()
			output += tokens.Get("candidates").Int()
			reasoning += tokens.Get("thoughts").Int()
			cached += tokens.Get("cached").Int()
			return true
		})
		if stats.Get("models").Exists() {
			md["input_tokens"] = input
			md["output_tokens"] = output
			md["reasoning_tokens"] = reasoning
			md["cache_read"] = cached
		}
	},
}

// codexDialect parses `codex exec --json` JSONL. Items complete one by one;
// agent_message items carry text, tool-ish items (command execution, MCP
// calls, file changes, web searches) are tool events, and "turn.completed"
// terminates the run with token usage.
var codexDialect = dialect{
	name:        "codex_jsonl",
	cliLabel:    "Codex CLI",
	sessionPath: "thread_id",
	toolKey:     "tool_events",
	classify: func(ev gjson.Result) eventKind {
		switch ev.Get("type").String() {
		case "item.started":
			if itemType := ev.Get("item.type").String(); itemType != "" && itemType != "agent_message" {
				return kindTool
			}
		case "item.completed":
			switch ev.Get("item.type").String() {
			case "agent_message":
				return kindText
			case "command_execution", "mcp_tool_call", "file_change", "web_search", "patch_apply":
				return kindToolDone
			}
		case "turn.completed":
			return kindTerminal
		}
		return kindOther
	},
	text: func(ev gjson.Result) string {
		return ev.Get("item.text").String()
	},
	metadata: func(term gjson.Result, md map[string]any) {
		usage := term.Get("usage")
		if !usage.Exists() {
			return
		}
		put(md, "input_tokens", usage.Get("input_tokens"))
		put(md, "output_tokens", usage.Get("output_tokens"))
		put(md, "cache_read", usage.Get("cached_input_tokens"))
	},
}

// cursorDialect parses `cursor-agent -p --output-format stream-json`.
// Assistant messages carry text segments; tool_call events pair started and
// completed subtypes; the run terminates with a result/success event whose
// "result" field is the aggregated answer.
var cursorDialect = dialect{
	name:        "cursor_ndjson",
	cliLabel:    "Cursor CLI",
	sessionPath: "session_id",
	toolKey:     "tool_calls",
	classify: func(ev gjson.Result) eventKind {
		switch ev.Get("type").String() {
		case "assistant":
			return kindText
		case "tool_call":
			if ev.Get("subtype").String() == "completed" {
				return kindToolDone
			}
			return kindTool
		case "result":
			if ev.Get("subtype").String() == "success" {
				return kindTerminal
			}
		}
		return kindOther
	},
	text: func(ev gjson.Result) string {
		return joinedText(ev.Get(`message.content.#(type=="text")#.text`))
	},
	result: func(term gjson.Result) string {
		return term.Get("result").String()
	},
	metadata: func(term gjson.Result, md map[string]any) {
		put(md, "duration_ms", term.Get("duration_ms"))
		put(md, "duration_api_ms", term.Get("duration_api_ms"))
		if reqID := term.Get("request_id"); reqID.Exists() {
			md["request_id"] = reqID.String()
		}
		md["is_error"] = term.Get("is_error").Bool()
	},
}

// opencodeDialect parses `opencode run --format json`. Text events carry
// fragments under part.text; step_finish terminates the run with token
// buckets, cost, and the completion reason. There is no aggregated result
// field, so content always comes from the joined fragments.
var opencodeDialect = dialect{
	name:        "opencode_json",
	cliLabel:    "OpenCode CLI",
	sessionPath: "sessionID",
	toolKey:     "tool_events",
	classify: func(ev gjson.Result) eventKind {
		switch ev.Get("type").String() {
		case "text":
			return kindText
		case "tool_use":
			return kindTool
		case "tool_result":
			return kindToolDone
		case "step_finish":
			return kindTerminal
		}
		return kindOther
	},
	text: func(ev gjson.Result) string {
		return ev.Get("part.text").String()
	},
	metadata: func(term gjson.Result, md map[string]any) {
		part := term.Get("part")
		if tokens := part.Get("tokens"); tokens.Exists() {
			md["tokens"] = tokens.Value()
			md["input_tokens"] = tokens.Get("input").Int()
			md["output_tokens"] = tokens.Get("output").Int()
			md["reasoning_tokens"] = tokens.Get("reasoning").Int()
			if cache := tokens.Get("cache"); cache.Exists() {
				md["cache_read"] = cache.Get("read").Int()
				md["cache_write"] = cache.Get("write").Int()
			}
		}
		put(md, "cost", part.Get("cost"))
		if reason := part.Get("reason"); reason.Exists() && reason.String() != "" {
			md["finish_reason"] = reason.String()
		}
	},
}

func newDialectParser(d dialect) Factory {
	return func() Parser { return &ndjsonParser{d: d} }
}

func init() {
	for _, d := range []dialect{
		claudeDialect,
		geminiDialect,
		codexDialect,
		cursorDialect,
		opencodeDialect,
	} {
		builtins.Register(d.name, newDialectParser(d))
	}
}
