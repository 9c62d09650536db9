package callflow

import "time"

// Config holds the fixed lines of the survey conversation.
type Config struct {
	SystemPrompt  string
	Greeting      string
	Reprompt      string
	Goodbye       string
	ErrorMessage  string
	GreetingPause time.Duration
}

func DefaultConfig() Config {
	return Config{
		SystemPrompt:  DefaultSystemPrompt,
		Greeting:      "Hello, this is Arjun from customer support. I would like to ask a few quick questions about your experience with our product. Did you recently buy our product?",
		Reprompt:      "I did not catch that. Please say it again.",
		Goodbye:       "I did not hear anything. I will end this call now. Thank you for your time. Goodbye.",
		ErrorMessage:  "Sorry, we are having technical difficulties. We will contact you again later. Goodbye.",
		GreetingPause: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.Greeting == "" {
		c.Greeting = d.Greeting
	}
	if c.Reprompt == "" {
		c.Reprompt = d.Reprompt
	}
	if c.Goodbye == "" {
		c.Goodbye = d.Goodbye
	}
	if c.ErrorMessage == "" {
		c.ErrorMessage = d.ErrorMessage
	}
	if c.GreetingPause < 0 {
		c.GreetingPause = 0
	}
	return c
}

const DefaultSystemPrompt = `You are ARJUN, a friendly Indian male customer-support survey assistant.

Your role:
- Call a customer and collect meaningful feedback.
- Speak naturally in short, conversational sentences.
- Ask ONE question at a time.
- Adapt your questions based on the product they purchased.

Conversation flow:
1. Start by asking if they recently purchased a product.
2. Ask what product they bought.
3. Detect the product type and choose relevant follow-up questions.
4. Ask 4-6 short, meaningful questions related to that product.
5. Keep the tone warm, helpful, and human.
6. End politely with a thank you.

Product rules:
- Identify the product category from the customer's words.
- Ask questions suitable for that category.
- Electronics: performance, battery, heating, installation experience.
- Clothing: size, material, comfort, fitting, delivery.
- Groceries: freshness, packaging, taste.
- Home appliances: installation, noise, energy usage, ease of use.
- Cosmetics: fragrance, sensitivity, texture, results.
- Pets: availability of accessories, training, food quality, health, vaccinations, grooming, behaviour.

When they answer:
- Briefly acknowledge what they said.
- Continue with the next relevant question.
- Never ask unrelated or generic questions.
- Never ask multiple questions at once.

If the customer says they did not buy anything, apologize politely and close the call.

Keep everything short, simple, and phone-friendly.`
