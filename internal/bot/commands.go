package bot

import (
	"sentinel-moderation/internal/storage"

	"github.com/bwmarrin/discordgo"
)

var adminPermission int64 = discordgo.PermissionAdministrator

func commandDefinitions() []*discordgo.ApplicationCommand {
	featureChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(storage.FeatureNames))
	for _, name := range storage.FeatureNames {
		featureChoices = append(featureChoices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "setup",
			Description:              "Configure log channel, ticket role and member role",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "log_channel",
					Description:  "Channel for moderation logs",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "ticket_role",
					Description: "Role that handles tickets",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "member_role",
					Description: "Role given to new members",
					Required:    true,
				},
			},
		},
		{
			Name:                     "feature",
			Description:              "Enable or disable a moderation feature",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Feature to toggle",
					Required:    true,
					Choices:     featureChoices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "true to enable, false to disable",
					Required:    true,
				},
			},
		},
		{
			Name:                     "raid_reset",
			Description:              "Leave raid mode",
			DefaultMemberPermissions: &adminPermission,
		},
		{
			Name:                     "status",
			Description:              "Show raid state, features and recent moderation activity",
			DefaultMemberPermissions: &adminPermission,
		},
		{
			Name:        "ticket_open",
			Description: "Open a private support ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "What do you need help with",
					Required:    true,
				},
			},
		},
		{
			Name:        "ticket_claim",
			Description: "Claim this ticket",
		},
		{
			Name:        "ticket_unclaim",
			Description: "Release your claim on this ticket",
		},
		{
			Name:        "ticket_close",
			Description: "Close and delete this ticket",
		},
	}
}

func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	// commands from older releases
	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}
	return nil
}
