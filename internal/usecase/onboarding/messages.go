package onboarding

import (
	"fmt"
	"strings"
)

const (
	msgWelcome = "Hey! 👋 Welcome to InstaDigest.\n\n" +
		"Share any Instagram post with me and I'll turn everything you save into a short email digest.\n\n" +
		"First, what email should I send your digest to?"
	msgRestart       = "Let's finish setting you up. What email should I send your digest to?"
	msgInvalidEmail  = "Hmm, that doesn't look like an email address. Please send something like name@example.com."
	msgAskTime       = "Got it! ✉️\n\nWhat time should your daily digest arrive? For example 8am, 7:30 pm or 21:00."
	msgInvalidTime   = "I couldn't read that time. Try 8am, 7:30 pm or 21:00."
	msgNothingToSave = "I couldn't find a post in that message. Share a post or reel from Instagram and I'll save it."
	msgAlreadySaved  = "You've already saved that one. It will be in your next digest."
	msgPaused        = "Your digest is paused. Send \"resume\" whenever you want it back."
	msgResumed       = "Your digest is back on. 📬"
)

func onboardedMessage(displayTime string) string {
	lines := []string{
		"All set! 🎉",
		"",
		fmt.Sprintf("Your digest will arrive every day at %s.", displayTime),
		"",
		"Now just share posts and reels with me, and I'll collect them for you.",
		"Send \"help\" any time to see what I can do.",
	}
	return strings.Join(lines, "\n")
}

func helpMessage() string {
	lines := []string{
		"Here's what I can do:",
		"",
		"• Share a post or reel with me to save it for your digest.",
		"• status: show your digest settings.",
		"• pause: stop sending digests.",
		"• resume: start sending digests again.",
		"• help: show this message.",
	}
	return strings.Join(lines, "\n")
}

func statusMessage(email, displayTime string, enabled bool, saved int) string {
	state := "active"
	if !enabled {
		state = "paused"
	}
	lines := []string{
		"📋 Your digest settings:",
		"",
		fmt.Sprintf("Email: %s", email),
		fmt.Sprintf("Delivery time: %s", displayTime),
		fmt.Sprintf("Status: %s", state),
		fmt.Sprintf("Saved posts: %d", saved),
	}
	return strings.Join(lines, "\n")
}

func savedMessage(saved, total int) string {
	if saved == 1 {
		return fmt.Sprintf("Saved! ✅ You have %d %s waiting for your next digest.", total, plural(total, "post", "posts"))
	}
	return fmt.Sprintf("Saved %d posts! ✅ You have %d %s waiting for your next digest.", saved, total, plural(total, "post", "posts"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
