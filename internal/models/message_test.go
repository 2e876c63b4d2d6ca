package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   Payload
		want MessageType
		ok   bool
	}{
		{"explicit text", Payload{Type: MessageTypeText, Content: "hi"}, MessageTypeText, true},
		{"inferred text", Payload{Content: "hi"}, MessageTypeText, true},
		{"inferred file", Payload{FileURL: "https://x/y.png"}, MessageTypeFile, true},
		{"blank text", Payload{Type: MessageTypeText, Content: "  "}, MessageTypeText, false},
		{"file without url", Payload{Type: MessageTypeFile, Content: "caption"}, MessageTypeFile, false},
		{"empty", Payload{}, "", false},
		{"unknown type", Payload{Type: "sticker", Content: "x"}, "sticker", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.in.Normalize()
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got.Type)
		})
	}
}

func TestChannelParticipants(t *testing.T) {
	c := Channel{AdminID: "a", Members: []string{"b", "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, c.Participants())
	assert.True(t, c.HasParticipant("a"))
	assert.True(t, c.HasParticipant("c"))
	assert.False(t, c.HasParticipant("d"))
}
