package resolver

import (
	"strings"

	"github.com/wingbits/crewbot/pkg/models"
)

// gatePasses evaluates one permission gate. An empty list passes everyone.
// Otherwise a plain list passes only subjects in the list, and a blocklist
// passes only subjects not in the list.
func gatePasses(list []string, blocklist, subjectInList bool) bool {
	if len(list) == 0 {
		return true
	}
	if blocklist {
		return !subjectInList
	}
	return subjectInList
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

func anyOverlap(held, list []string) bool {
	for _, item := range held {
		if containsFold(list, item) {
			return true
		}
	}
	return false
}

// roleGateMessage renders the user-facing denial for the role gate. Verbose
// mode names the gate's roles; names is the display form of perms.Roles.
func roleGateMessage(perms models.Permissions, names []string) string {
	if perms.RolesBlocklist {
		if perms.VerboseErrors {
			return "You have a blocklisted role for this command. Blocklisted roles: " +
				strings.Join(names, ", ") + "."
		}
		return "You have a blocklisted role for this command."
	}
	if perms.VerboseErrors {
		return "You do not have the required role to execute this command. Required roles: " +
			strings.Join(names, ", ") + "."
	}
	return "You do not have the required role to execute this command."
}

// channelGateMessage renders the user-facing denial for the channel gate.
// mentions is the display form of perms.Channels.
func channelGateMessage(perms models.Permissions, mentions []string) string {
	if perms.ChannelsBlocklist {
		if perms.VerboseErrors {
			return "This command is blocklisted in this channel. Blocklisted channels: " +
				strings.Join(mentions, ", ") + "."
		}
		return "This command is blocklisted in this channel."
	}
	if perms.VerboseErrors {
		return "This command is not available in this channel. Required channels: " +
			strings.Join(mentions, ", ") + "."
	}
	return "This command is not available in this channel."
}
