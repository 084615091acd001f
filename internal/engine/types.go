package engine

import "strconv"

// Message is one chat message sent to a remote engine.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is everything needed for one inference call. Built per call and
// not modified afterwards.
type Request struct {
	ExecutablePath string
	ModelPath      string
	Prompt         string

	// Messages is the structured form of Prompt used by remote engines.
	// When empty, remote engines send Prompt as a single user message.
	Messages []Message
	// Model overrides the remote engine's configured model name.
	Model string

	ContextSize int
	Threads     int
	GPULayers   int
	Temperature float64
	MaxTokens   int
}

// Args returns the local driver's command-line arguments. The result depends
// only on r.
func (r Request) Args() []string {
	return []string{
		"-m", r.ModelPath,
		"-p", r.Prompt,
		"-n", strconv.Itoa(r.MaxTokens),
		"-ngl", strconv.Itoa(r.GPULayers),
		"-c", strconv.Itoa(r.ContextSize),
		"-t", strconv.Itoa(r.Threads),
		"--temp", strconv.FormatFloat(r.Temperature, 'f', -1, 64),
	}
}

// remoteMessages returns the messages a remote engine should send.
func (r Request) remoteMessages() []Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	return []Message{{Role: "user", Content: r.Prompt}}
}
