package resolver

import (
	"github.com/wingbits/crewbot/internal/discord"
	"github.com/wingbits/crewbot/pkg/models"
)

// emptyContentNotice replaces a variant whose title, content, and image are
// all empty, so an answer is always visibly an answer.
const emptyContentNotice = "No content available."

// composeReply renders a content variant into a deliverable message.
func composeReply(variant models.ContentVariant, defaultColor int, footer string) discord.Outgoing {
	out := discord.Outgoing{
		Title:    variant.Title,
		Content:  variant.Content,
		IsEmbed:  variant.IsEmbed,
		ImageURL: variant.ImageURL,
		Footer:   footer,
	}
	if variant.Title == "" && variant.Content == "" && variant.ImageURL == "" {
		out.Content = emptyContentNotice
	}
	if out.IsEmbed {
		out.EmbedColor = variant.EmbedColor
		if out.EmbedColor == 0 {
			out.EmbedColor = defaultColor
		}
	}
	return out
}

// executedBy is the attribution footer carried on every reply.
func executedBy(msg discord.Incoming) string {
	return "Executed by " + msg.AuthorTag + " - " + msg.AuthorID
}
