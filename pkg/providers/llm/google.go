package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

// GoogleLLM calls Gemini's streamGenerateContent endpoint (alt=sse),
// generalizing the teacher's single-shot Complete into agent.LLM's
// streaming, tool-call-aware Chat.
type GoogleLLM struct {
	apiKey string
	url    string
	model  string
}

// NewGoogleLLM constructs a GoogleLLM.
func NewGoogleLLM(apiKey string, model string) *GoogleLLM {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleLLM{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":streamGenerateContent",
		model:  model,
	}
}

// Name implements agent.LLM.
func (l *GoogleLLM) Name() string {
	return "google-llm"
}

type googlePart struct {
	Text         string `json:"text,omitempty"`
	FunctionCall *struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"functionCall,omitempty"`
}

type googleStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Chat implements agent.LLM by streaming Gemini's SSE response. Gemini
// hands back each function call's arguments as one complete JSON object
// per event rather than fragmenting them like OpenAI does, so each
// functionCall part becomes a complete agent.ToolCall immediately.
func (l *GoogleLLM) Chat(ctx context.Context, req agent.ChatRequest, onChunk func(agent.ChatChunk) error) error {
	var contents []map[string]interface{}
	var system string
	for _, it := range req.Items {
		if it.Role == agent.RoleSystem {
			system = it.Content
			continue
		}
		role := "user"
		switch it.Role {
		case agent.RoleAssistant:
			role = "model"
		case agent.RoleToolOut:
			role = "user"
		}
		contents = append(contents, map[string]interface{}{
			"role":  role,
			"parts": []map[string]string{{"text": it.Content}},
		})
	}

	payload := map[string]interface{}{"contents": contents}
	if system != "" {
		payload["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": system}},
		}
	}
	if len(req.Tools) > 0 {
		payload["tools"] = toGoogleTools(req.Tools)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", l.url+"?alt=sse&key="+l.apiKey, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("google llm error (status %d): %v", resp.StatusCode, errResp)
	}

	return scanSSEEvents(resp.Body, func(data string) error {
		var chunk googleStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if len(chunk.Candidates) == 0 {
			return nil
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text != "" {
				if err := onChunk(agent.ChatChunk{Delta: agent.ChatDelta{Role: agent.RoleAssistant, Content: part.Text}}); err != nil {
					return err
				}
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				call := agent.ToolCall{Name: part.FunctionCall.Name, Args: string(args)}
				if err := onChunk(agent.ChatChunk{Delta: agent.ChatDelta{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{call}}}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func toGoogleTools(defs []agent.ToolDefinition) []map[string]interface{} {
	decls := make([]map[string]interface{}, 0, len(defs))
	for _, d := range defs {
		schema := json.RawMessage(d.ParamsJSONSchema)
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		decls = append(decls, map[string]interface{}{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  schema,
		})
	}
	return []map[string]interface{}{{"functionDeclarations": decls}}
}

var _ agent.LLM = (*GoogleLLM)(nil)
