package tracker

import (
	"fmt"
	"strings"
)

const (
	greetingText = "**FEEEELING HUNGRY?** REMI 🧑🏻‍🍳 IS HERE TO HELP YOU!\n" +
		"Tell us what you're looking for, and we'll help you **find and book a restaurant!**\n" +
		"What type of food are you in the mood for? 🍕🍣🌮"
	apologyText       = "⚠️ Sorry, I couldn't process that. Could you rephrase?"
	noResultsText     = "⚠️ Sorry, I couldn't find any matching restaurants. Try adjusting your preferences! 🔍"
	inviteDetailsText = "Awesome! 🥳 Tell me the **reservation date** and **time**, and tag the friend you'd like to invite (e.g. @john_doe)."
	invitePromptText  = "Would you like to invite friends to join you? 👯"
	inviteUnclearText = "🤔 Would you like to invite a friend? Tap a button or just answer yes or no."
	doneText          = "✅ You're all set! Say **restart** or **new search** whenever you want to plan another meal. 🍽️"
)

func choiceListText(lead, list string, n int) string {
	var sb strings.Builder
	if lead != "" {
		sb.WriteString(lead)
		sb.WriteString("\n\n")
	}
	sb.WriteString("🍴 Here are some options:\n")
	sb.WriteString(list)
	fmt.Fprintf(&sb, "\nReply with the number of your favorite (1-%d), e.g. `Top choice: 1`.", n)
	return sb.String()
}

func chooseRangeText(n int) string {
	return fmt.Sprintf("🤔 I didn't catch which restaurant you want. Please pick a number between 1 and %d (e.g. `Top choice: 1`).", n)
}

func bookingText(venue string) string {
	return fmt.Sprintf("Great! Let's get started on booking you a table at **%s**. 🎉", venue)
}

func soloText(venue string) string {
	if venue == "" {
		return "Table for one it is! 🍽️ Enjoy your meal! Say **restart** anytime to plan another outing."
	}
	return fmt.Sprintf("Table for one it is! 🍽️ Enjoy your meal at **%s**! Say **restart** anytime to plan another outing.", venue)
}

func searchFailedText(code int, body string) string {
	return fmt.Sprintf("⚠️ Yelp API request failed. Error %d: %s", code, body)
}

func inviteText(inviter, venue, date, clock string) string {
	return fmt.Sprintf("Hey! 👋 %s would love for you to join them for a meal at **%s** on %s at %s. 🍽️ Can you make it?", inviter, venue, date, clock)
}

func inviteSentText(friend string) string {
	return fmt.Sprintf("📨 Invitation sent to %s! I'll let you know as soon as they respond.", friend)
}

func deliveryFailedText(friend string) string {
	return fmt.Sprintf("⚠️ I couldn't deliver the invitation to %s. Double-check the handle and try again.", friend)
}

func acceptedText(friend, link string) string {
	return fmt.Sprintf("🎉 %s has accepted the invitation! \n📅 [Click here to add to Google Calendar](%s)", friend, link)
}

func declinedText(friend string) string {
	return fmt.Sprintf("😢 %s has declined the invitation.", friend)
}

func missingDetailsText(friend string) string {
	return fmt.Sprintf("❌ Missing event details for %s. Cannot generate calendar invite.", friend)
}

func waitingText(friend string) string {
	return fmt.Sprintf("⏳ Still waiting for %s to respond to your invitation. Say **restart** to plan something new.", friend)
}
