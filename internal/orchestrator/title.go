package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/agentmesh/runtime/internal/provider"
)

const titleSystemPrompt = "Summarize the user's opening message as a short title of 3 to 6 words. Respond with the title only, no punctuation at the end, no quotes."

const maxTitleChars = 80

// GenerateTitle asks prov/modelID for a short session title derived from
// the first user message, by draining a one-shot completion stream to its
// end rather than forwarding it to any client.
func GenerateTitle(ctx context.Context, prov provider.Provider, modelID, firstUserMessage string) (string, error) {
	if strings.TrimSpace(firstUserMessage) == "" {
		return "", errors.New("orchestrator: cannot title an empty message")
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: modelID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: titleSystemPrompt},
			{Role: schema.User, Content: firstUserMessage},
		},
		MaxTokens:   32,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(msg.Content)
	}

	title := strings.TrimSpace(strings.Trim(sb.String(), "\"'"))
	if len(title) > maxTitleChars {
		title = title[:maxTitleChars]
	}
	return title, nil
}
