// Package memory keeps the bounded transcript of one conversation.
package memory

import "fmt"

const DefaultCapacity = 6

type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Conversation is a fixed-capacity ring of turns. Appending to a full
// conversation evicts the oldest turn. It is not safe for concurrent use.
type Conversation struct {
	turns []Turn
	start int
	size  int
}

func New(capacity int) (*Conversation, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("memory capacity must be >= 1, got %d", capacity)
	}
	return &Conversation{turns: make([]Turn, capacity)}, nil
}

func (c *Conversation) Append(question, answer string) {
	turn := Turn{Question: question, Answer: answer}
	if c.size < len(c.turns) {
		c.turns[(c.start+c.size)%len(c.turns)] = turn
		c.size++
		return
	}
	c.turns[c.start] = turn
	c.start = (c.start + 1) % len(c.turns)
}

// Turns returns a copy of the transcript, oldest first.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, 0, c.size)
	for i := 0; i < c.size; i++ {
		out = append(out, c.turns[(c.start+i)%len(c.turns)])
	}
	return out
}

func (c *Conversation) Len() int {
	return c.size
}

func (c *Conversation) Clear() {
	for i := range c.turns {
		c.turns[i] = Turn{}
	}
	c.start = 0
	c.size = 0
}
