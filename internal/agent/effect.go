package agent

// Effect describes something that must happen outside the core in response
// to an inbound message: an outbound send or a persistence action. The
// transport layer executes effects in order.
type Effect interface {
	isEffect()
}

// SendText sends a plain text message to the chat.
type SendText struct {
	Text string
}

// Choice is one inline button: the label the user sees and the data echoed
// back when pressed.
type Choice struct {
	Label string
	Data  string
}

// SendChoice sends a message with rows of inline buttons.
type SendChoice struct {
	Text    string
	Buttons [][]Choice
}

// PersistStudy commits one study record. The executor appends it to the
// study log and seeds the topic's first spaced review.
type PersistStudy struct {
	Topic   string
	RawText string
}

// PersistResourceLink saves a link to the learning bag.
type PersistResourceLink struct {
	Title   string
	URL     string
	RawText string
}

// NoOp means the message required no externally visible reaction.
type NoOp struct{}

func (SendText) isEffect()            {}
func (SendChoice) isEffect()          {}
func (PersistStudy) isEffect()        {}
func (PersistResourceLink) isEffect() {}
func (NoOp) isEffect()                {}
