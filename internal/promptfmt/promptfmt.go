// Package promptfmt renders a chat message sequence into the raw text a
// local model's architecture expects, and extracts the assistant's reply
// back out of raw generation output. Unlike a hosted chat-completions API,
// the local controller talks to a model that only understands flat text —
// this is the glue.
package promptfmt

import (
	"regexp"
	"strings"

	"github.com/vanta-core/vanta/pkg/types"
)

// Architecture names a supported local-model prompt format.
type Architecture string

const (
	ArchLlama2  Architecture = "llama2"
	ArchMistral Architecture = "mistral"
	ArchVicuna  Architecture = "vicuna"
	ArchChatML  Architecture = "chatml"
)

// DefaultArchitecture is used whenever a requested architecture has no
// registered template.
const DefaultArchitecture = ArchMistral

type template struct {
	systemPrefix, systemSuffix     string
	userPrefix, userSuffix         string
	assistantPrefix, assistantSuffix string
	defaultSystemPrompt            string
}

var templates = map[Architecture]template{
	ArchLlama2: {
		systemPrefix: "<s>[INST] <<SYS>>\n",
		systemSuffix: "\n<</SYS>>\n\n",
		userSuffix:   " [/INST]",
		assistantPrefix: " ",
		assistantSuffix: " </s><s>[INST] ",
		defaultSystemPrompt: "You are a helpful, respectful and honest assistant. Keep answers safe and accurate; say when you don't know something rather than guessing.",
	},
	ArchMistral: {
		systemPrefix: "<s>[INST] ",
		systemSuffix: "\n",
		userSuffix:   " [/INST]",
		assistantPrefix: " ",
		assistantSuffix: " </s><s>[INST] ",
		defaultSystemPrompt: "You are a helpful, precise voice assistant. Keep responses conversational and suited to being read aloud.",
	},
	ArchVicuna: {
		systemSuffix:    "\n\n",
		userPrefix:      "USER: ",
		userSuffix:      "\n",
		assistantPrefix: "ASSISTANT: ",
		assistantSuffix: "\n\n",
		defaultSystemPrompt: "You are a helpful voice assistant giving accurate, conversational answers.",
	},
	ArchChatML: {
		systemPrefix:    "<|im_start|>system\n",
		systemSuffix:    "<|im_end|>\n",
		userPrefix:      "<|im_start|>user\n",
		userSuffix:      "<|im_end|>\n",
		assistantPrefix: "<|im_start|>assistant\n",
		assistantSuffix: "<|im_end|>\n",
		defaultSystemPrompt: "You are a helpful, respectful, and honest voice assistant.",
	},
}

func resolve(arch Architecture) (Architecture, template) {
	if t, ok := templates[arch]; ok {
		return arch, t
	}
	return DefaultArchitecture, templates[DefaultArchitecture]
}

// Format renders messages into the flat prompt text for arch. A system
// message present in messages wins over the architecture's default system
// prompt.
func Format(messages []types.Message, arch Architecture) string {
	resolvedArch, t := resolve(arch)
	_ = resolvedArch

	var systemMessage *types.Message
	other := make([]types.Message, 0, len(messages))
	for i := range messages {
		if messages[i].Role == "system" && systemMessage == nil {
			systemMessage = &messages[i]
			continue
		}
		other = append(other, messages[i])
	}

	var b strings.Builder
	b.WriteString(t.systemPrefix)
	if systemMessage != nil {
		b.WriteString(systemMessage.Content)
	} else {
		b.WriteString(t.defaultSystemPrompt)
	}
	b.WriteString(t.systemSuffix)

	for _, m := range other {
		switch m.Role {
		case "assistant":
			b.WriteString(t.assistantPrefix)
			b.WriteString(m.Content)
			b.WriteString(t.assistantSuffix)
		default: // "user" and any unrecognized role are treated as user turns
			b.WriteString(t.userPrefix)
			b.WriteString(m.Content)
			b.WriteString(t.userSuffix)
		}
	}

	return b.String()
}

var vicunaAssistantRe = regexp.MustCompile(`(?s)ASSISTANT:(.*?)(USER:|$)`)
var chatmlAssistantRe = regexp.MustCompile(`(?s)<\|im_start\|>assistant\n(.*?)(<\|im_end\|>|$)`)

// ExtractResponse pulls the assistant's reply out of a model's raw output
// for the given architecture, stripping template markers.
func ExtractResponse(output string, arch Architecture) string {
	resolvedArch, t := resolve(arch)

	switch resolvedArch {
	case ArchLlama2, ArchMistral:
		resp := output
		if parts := strings.SplitN(output, "[/INST]", 2); len(parts) == 2 {
			resp = parts[1]
		}
		if idx := strings.Index(resp, "</s>"); idx >= 0 {
			resp = resp[:idx]
		}
		return strings.TrimSpace(resp)

	case ArchVicuna:
		matches := vicunaAssistantRe.FindAllStringSubmatch(output, -1)
		if len(matches) > 0 {
			return strings.TrimSpace(matches[len(matches)-1][1])
		}
		return strings.TrimSpace(output)

	case ArchChatML:
		matches := chatmlAssistantRe.FindAllStringSubmatch(output, -1)
		if len(matches) > 0 {
			return strings.TrimSpace(matches[len(matches)-1][1])
		}
		return strings.TrimSpace(output)

	default:
		result := output
		if t.assistantPrefix != "" && strings.Contains(result, t.assistantPrefix) {
			chunks := strings.Split(result, t.assistantPrefix)
			result = chunks[len(chunks)-1]
		}
		if t.assistantSuffix != "" && strings.Contains(result, t.assistantSuffix) {
			result = strings.Split(result, t.assistantSuffix)[0]
		}
		return strings.TrimSpace(result)
	}
}
