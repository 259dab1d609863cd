package chat

import (
	"github.com/tbxark/remi/intent"
	"github.com/tbxark/remi/types"
)

func button(id, text, msg string) types.Action {
	return types.Action{
		Type:              "button",
		Text:              text,
		Msg:               msg,
		MsgInChatWindow:   true,
		MsgProcessingType: "sendMessage",
		ButtonID:          id,
	}
}

// AddFriendsButtons asks whether the user wants to bring someone along.
func AddFriendsButtons() types.Attachment {
	return types.Attachment{
		Title: "Add friends?",
		Text:  "Would you like to invite a friend?",
		Actions: []types.Action{
			button("yes_button", "✅ Yes, invite a friend!", intent.AddFriendYes),
			button("no_button", "❌ No, just me.", intent.AddFriendNo),
		},
	}
}

// RSVPButtons lets friendID answer an invitation. The callbacks carry the
// friend's own handle so the reply can be matched to the invitation.
func RSVPButtons(friendID string) types.Attachment {
	return types.Attachment{
		Title: "RSVP",
		Text:  "Click a button to respond:",
		Actions: []types.Action{
			button("yes_button", "✅ Yes, I'll be there!", intent.RSVPYesPrefix+friendID),
			button("no_button", "❌ No, I can't make it.", intent.RSVPNoPrefix+friendID),
		},
	}
}
