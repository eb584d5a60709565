package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentinel-moderation/internal/modules/audit"
	"sentinel-moderation/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorAction = 0x22C55E
	colorError  = 0xEF4444
)

// onInteractionCreate runs on the gateway reader; commands do REST and
// database work, so they are handled off it.
func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	b.async(func() {
		b.handleInteraction(session, interaction)
	})
}

func (b *Bot) handleInteraction(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.GuildID == "" || interaction.Member == nil || interaction.Member.User == nil {
		b.respond(session, interaction, "This command only works in a server.", true)
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()
	options := optionMap(data.Options)

	switch data.Name {
	case "setup", "feature", "raid_reset", "status":
		if !isAdmin(interaction.Member) {
			b.respond(session, interaction, "Admin only", true)
			return
		}
		b.handleAdminCommand(ctx, session, interaction, data.Name, options)
	case "ticket_open", "ticket_claim", "ticket_unclaim", "ticket_close":
		if !b.gate.IsEnabled(ctx, interaction.GuildID, storage.FeatureTickets) {
			b.respond(session, interaction, "Tickets are disabled on this server.", true)
			return
		}
		b.handleTicketCommand(ctx, session, interaction, data.Name, options)
	}
}

func (b *Bot) handleAdminCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, name string, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	guildID := interaction.GuildID
	actorID := interaction.Member.User.ID

	switch name {
	case "setup":
		channel := options["log_channel"].ChannelValue(nil)
		ticketRole := options["ticket_role"].RoleValue(nil, guildID)
		roleOpt := options["member_role"].RoleValue(nil, guildID)
		cfg := storage.GuildConfig{
			GuildID:      guildID,
			LogChannelID: channel.ID,
			TicketRoleID: ticketRole.ID,
			MemberRoleID: roleOpt.ID,
		}
		if err := b.store.UpsertGuildConfig(ctx, cfg); err != nil {
			b.commandFailed(session, interaction, "setup", err)
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, guildID, actorID, "setup", fmt.Sprintf("log=%s ticket_role=%s member_role=%s", cfg.LogChannelID, cfg.TicketRoleID, cfg.MemberRoleID))
		b.respond(session, interaction, "✅ Setup complete", true)

	case "feature":
		feature := options["name"].StringValue()
		enabled := options["enabled"].BoolValue()
		if err := b.gate.Set(ctx, guildID, feature, enabled); err != nil {
			b.commandFailed(session, interaction, "feature", err)
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, guildID, actorID, "feature_toggle", fmt.Sprintf("%s=%t", feature, enabled))
		b.respond(session, interaction, fmt.Sprintf("`%s` is now %s", feature, onOff(enabled)), true)

	case "raid_reset":
		if !b.engine.ResetRaid(guildID) {
			b.respond(session, interaction, "Raid mode is not active.", true)
			return
		}
		b.audit.Log(ctx, audit.LevelWarn, guildID, actorID, "raid_reset", "raid mode cleared by operator")
		b.respond(session, interaction, "Raid mode cleared.", true)

	case "status":
		b.respondEmbed(session, interaction, b.statusEmbed(ctx, guildID), true)
	}
}

func (b *Bot) statusEmbed(ctx context.Context, guildID string) *discordgo.MessageEmbed {
	toggles := b.gate.Features(ctx, guildID)
	lines := make([]string, 0, len(storage.FeatureNames))
	for _, name := range storage.FeatureNames {
		lines = append(lines, fmt.Sprintf("%s: %s", name, onOff(toggles.Enabled(name))))
	}

	activity := "unavailable"
	if report, err := b.analytics.Report(ctx, guildID, time.Now().Add(-24*time.Hour)); err == nil {
		activity = fmt.Sprintf("total %d, info %d, warn %d, crit %d",
			report.Total, report.ByLevel[audit.LevelInfo], report.ByLevel[audit.LevelWarn], report.ByLevel[audit.LevelCrit])
	} else {
		b.logger.Warn("status report failed", zap.String("guild_id", guildID), zap.Error(err))
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Raid", Value: b.engine.RaidState(guildID).String(), Inline: true},
		{Name: "Features", Value: strings.Join(lines, "\n"), Inline: false},
		{Name: "Last 24h", Value: activity, Inline: false},
	}
	return commandEmbed("Moderation status", "", colorAction, fields)
}

func (b *Bot) handleTicketCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, name string, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := interaction.Member.User
	channelID := interaction.ChannelID

	switch name {
	case "ticket_open":
		cfg, ok, err := b.store.GetGuildConfig(ctx, interaction.GuildID)
		if err != nil {
			b.commandFailed(session, interaction, "ticket_open", err)
			return
		}
		if !ok || cfg.TicketRoleID == "" {
			b.respond(session, interaction, "Run /setup first.", true)
			return
		}
		channel, err := session.GuildChannelCreateComplex(interaction.GuildID, discordgo.GuildChannelCreateData{
			Name:                 "ticket-" + user.Username,
			Type:                 discordgo.ChannelTypeGuildText,
			PermissionOverwrites: ticketOverwrites(interaction.GuildID, user.ID, cfg.TicketRoleID),
		})
		if err != nil {
			b.commandFailed(session, interaction, "ticket_open", err)
			return
		}
		ticket := storage.Ticket{ChannelID: channel.ID, GuildID: interaction.GuildID, OpenerID: user.ID}
		if err := b.store.OpenTicket(ctx, ticket); err != nil {
			_, _ = session.ChannelDelete(channel.ID)
			b.commandFailed(session, interaction, "ticket_open", err)
			return
		}
		reason := options["reason"].StringValue()
		_, _ = session.ChannelMessageSend(channel.ID, fmt.Sprintf("🎟 Ticket opened by <@%s>\nReason: %s", user.ID, reason))
		b.respond(session, interaction, "Ticket created", true)

	case "ticket_claim":
		err := b.store.ClaimTicket(ctx, channelID, user.ID)
		switch {
		case errors.Is(err, storage.ErrNotTicket), errors.Is(err, storage.ErrAlreadyClaimed):
			b.respond(session, interaction, "Already claimed / not ticket", true)
			return
		case err != nil:
			b.commandFailed(session, interaction, "ticket_claim", err)
			return
		}
		_, _ = session.ChannelMessageSend(channelID, fmt.Sprintf("🛠 Claimed by <@%s>", user.ID))
		b.respond(session, interaction, "Claimed", true)

	case "ticket_unclaim":
		err := b.store.UnclaimTicket(ctx, channelID, user.ID)
		switch {
		case errors.Is(err, storage.ErrNotTicket), errors.Is(err, storage.ErrNotClaimer):
			b.respond(session, interaction, "Not yours", true)
			return
		case err != nil:
			b.commandFailed(session, interaction, "ticket_unclaim", err)
			return
		}
		_, _ = session.ChannelMessageSend(channelID, "🔓 Unclaimed")
		b.respond(session, interaction, "Unclaimed", true)

	case "ticket_close":
		err := b.store.CloseTicket(ctx, channelID)
		if errors.Is(err, storage.ErrNotTicket) {
			b.respond(session, interaction, "This channel is not a ticket.", true)
			return
		}
		if err != nil {
			b.commandFailed(session, interaction, "ticket_close", err)
			return
		}
		b.respond(session, interaction, "Closing ticket", true)
		if _, err := session.ChannelDelete(channelID); err != nil {
			b.logger.Warn("ticket channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	}
}

func ticketOverwrites(guildID, userID, roleID string) []*discordgo.PermissionOverwrite {
	return []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: userID, Type: discordgo.PermissionOverwriteTypeMember, Allow: discordgo.PermissionViewChannel},
		{ID: roleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel},
	}
}

func (b *Bot) commandFailed(session *discordgo.Session, interaction *discordgo.InteractionCreate, command string, err error) {
	b.logger.Warn("command failed", zap.String("command", command), zap.String("guild_id", interaction.GuildID), zap.Error(err))
	b.respondEmbed(session, interaction, commandEmbed("Command failed", "Something went wrong, try again later.", colorError, nil), true)
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

// isAdmin relies on the resolved permissions Discord attaches to interaction members.
func isAdmin(member *discordgo.Member) bool {
	return member != nil && member.Permissions&discordgo.PermissionAdministrator != 0
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
