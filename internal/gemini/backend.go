package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// SearchToolName is the single capability the model may call mid-conversation.
const SearchToolName = "web_search"

const (
	roleUser  = "user"
	roleModel = "model"
)

// reply is one model response round: free text, a tool call, or both.
type reply struct {
	text     string
	toolCall *toolCall
}

type toolCall struct {
	name string
	args map[string]any
}

// backend abstracts the generative API so the retry and conversation logic
// can be exercised against a fake.
type backend interface {
	generate(ctx context.Context, spec ModelSpec, conv *Conversation, tools bool) (*reply, error)
	stream(ctx context.Context, spec ModelSpec, conv *Conversation, tools bool, emit func(chunk string)) (*reply, error)
	close() error
}

// News pages routinely trip the default filters (war, violence, disasters),
// so every category is turned off.
var permissiveSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
}

var searchToolDecl = &genai.Tool{
	FunctionDeclarations: []*genai.FunctionDeclaration{{
		Name: SearchToolName,
		Description: "Searches the web for current news and information. " +
			"Use it when the answer needs up-to-date knowledge outside your training data. " +
			"Returns a ranked list of result titles, snippets and links.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "Search keywords or a question",
				},
				"num_results": {
					Type:        genai.TypeInteger,
					Description: "How many results to return",
				},
			},
			Required: []string{"query"},
		},
	}},
}

type geminiBackend struct {
	client *genai.Client
}

func newGeminiBackend(ctx context.Context, apiKey string) (*geminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiBackend{client: client}, nil
}

func (b *geminiBackend) close() error {
	return b.client.Close()
}

func (b *geminiBackend) model(spec ModelSpec, tools bool) *genai.GenerativeModel {
	model := b.client.GenerativeModel(spec.Name)
	model.SetTemperature(0.7)
	model.SetTopP(0.95)
	model.SetTopK(60)
	model.SetMaxOutputTokens(spec.MaxOutputTokens)
	model.SafetySettings = permissiveSafety
	if tools {
		model.Tools = []*genai.Tool{searchToolDecl}
	}
	return model
}

func (b *geminiBackend) generate(ctx context.Context, spec ModelSpec, conv *Conversation, tools bool) (*reply, error) {
	session, lastParts, err := b.session(spec, conv, tools)
	if err != nil {
		return nil, err
	}

	resp, err := session.SendMessage(ctx, lastParts...)
	if err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errEmptyResponse
	}
	text, call := scanParts(resp.Candidates[0].Content.Parts)
	if text == "" && call == nil {
		return nil, errEmptyResponse
	}
	return &reply{text: text, toolCall: call}, nil
}

func (b *geminiBackend) stream(ctx context.Context, spec ModelSpec, conv *Conversation, tools bool, emit func(string)) (*reply, error) {
	session, lastParts, err := b.session(spec, conv, tools)
	if err != nil {
		return nil, err
	}

	iter := session.SendMessageStream(ctx, lastParts...)
	r := &reply{}
	var full strings.Builder
	emitted := false

	for {
		resp, iterErr := iter.Next()
		if iterErr == iterator.Done {
			break
		}
		if iterErr != nil {
			if emitted {
				return nil, fmt.Errorf("%w: %v", errStreamInterrupted, iterErr)
			}
			return nil, iterErr
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		text, call := scanParts(resp.Candidates[0].Content.Parts)
		if call != nil && r.toolCall == nil {
			r.toolCall = call
		}
		if text == "" {
			continue
		}
		emitted = true
		full.WriteString(text)
		if emit != nil {
			emit(text)
		}
	}

	r.text = full.String()
	if r.text == "" && r.toolCall == nil {
		return nil, errEmptyResponse
	}
	return r, nil
}

func (b *geminiBackend) session(spec ModelSpec, conv *Conversation, tools bool) (*genai.ChatSession, []genai.Part, error) {
	history, lastParts, err := conversationContents(conv)
	if err != nil {
		return nil, nil, err
	}
	session := b.model(spec, tools).StartChat()
	session.History = history
	return session, lastParts, nil
}

func scanParts(parts []genai.Part) (string, *toolCall) {
	var text strings.Builder
	var call *toolCall
	for _, part := range parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			if call == nil {
				call = &toolCall{name: p.Name, args: p.Args}
			}
		}
	}
	return text.String(), call
}

// conversationContents maps the conversation onto the wire format: adjacent
// same-role turns collapse into one content (a model reply carrying text plus
// a tool call is one message), and the trailing user content is split off as
// the message to send.
func conversationContents(conv *Conversation) ([]*genai.Content, []genai.Part, error) {
	var contents []*genai.Content
	for _, turn := range conv.Turns() {
		role, part := turnPart(turn)
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{part}})
	}

	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("empty conversation")
	}
	last := contents[len(contents)-1]
	if last.Role != roleUser {
		return nil, nil, fmt.Errorf("conversation must end with a user turn")
	}
	return contents[:len(contents)-1], last.Parts, nil
}

func turnPart(turn Turn) (string, genai.Part) {
	switch turn.Kind {
	case TurnModelText:
		return roleModel, genai.Text(turn.Text)
	case TurnModelToolCall:
		return roleModel, genai.FunctionCall{Name: turn.ToolName, Args: turn.ToolArgs}
	case TurnToolResult:
		return roleUser, genai.FunctionResponse{
			Name:     turn.ToolName,
			Response: map[string]any{"content": turn.Text},
		}
	default:
		return roleUser, genai.Text(turn.Text)
	}
}
