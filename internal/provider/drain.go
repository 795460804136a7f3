package provider

import (
	"errors"
	"io"
	"strings"
)

// Drain reads the stream to completion and folds the chunks into one
// Response. Tool calls without an id are given one. onChunk, when non-nil,
// observes every chunk as it arrives.
//
// On a read error the partial response is returned together with the error.
func Drain(s Stream, onChunk func(*Chunk)) (*Response, error) {
	defer s.Close()

	var content, reasoning strings.Builder
	resp := &Response{}

	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			resp.Content = content.String()
			resp.Reasoning = reasoning.String()
			return resp, err
		}
		if chunk == nil {
			continue
		}
		if onChunk != nil {
			onChunk(chunk)
		}

		content.WriteString(chunk.Delta)
		reasoning.WriteString(chunk.Reasoning)
		for _, tc := range chunk.ToolCalls {
			if tc.ID == "" {
				tc.ID = NewToolCallID()
			}
			if len(tc.Function.Arguments) == 0 {
				tc.Function.Arguments = []byte("{}")
			}
			resp.ToolCalls = append(resp.ToolCalls, tc)
		}
		if chunk.Usage != nil {
			u := *chunk.Usage
			resp.Usage = &u
		}
	}

	resp.Content = content.String()
	resp.Reasoning = reasoning.String()
	return resp, nil
}
