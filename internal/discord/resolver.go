package discord

import (
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/artifactgaming/carlbot/internal/router"
)

var (
	memberMention = regexp.MustCompile(`^<@!?(\d+)>$`)
	roleMention   = regexp.MustCompile(`^<@&(\d+)>$`)
)

// ResolveMember resolves a mention, username, nickname or name#discriminator
// token to a member id.
func (b *Bot) ResolveMember(ctx *router.Context, token string) (string, bool) {
	if m := memberMention.FindStringSubmatch(token); m != nil {
		return m[1], true
	}

	if token == "" {
		return "", false
	}
	for _, member := range b.members(ctx.GuildID) {
		if member.User == nil {
			continue
		}
		if token == member.Nick ||
			token == member.User.Username ||
			token == member.User.Username+"#"+member.User.Discriminator {
			return member.User.ID, true
		}
	}
	return "", false
}

// ResolveMemberOrRole tries members first, then roles. The token "everyone"
// and the @everyone mention resolve to the guild-wide role.
func (b *Bot) ResolveMemberOrRole(ctx *router.Context, token string) (string, bool) {
	if id, ok := b.ResolveMember(ctx, token); ok {
		return id, true
	}
	if m := roleMention.FindStringSubmatch(token); m != nil {
		return m[1], true
	}
	// The @everyone role shares the guild's id.
	if token == "everyone" || token == "@everyone" {
		return ctx.GuildID, true
	}

	guild, err := b.guild(ctx.GuildID)
	if err != nil {
		log.Warn().Err(err).Str("guild", ctx.GuildID).Msg("guild lookup failed")
		return "", false
	}
	for _, role := range guild.Roles {
		if role.Name == token {
			return role.ID, true
		}
	}
	return "", false
}

// MemberName returns the member's nickname, or username when no nickname is
// set.
func (b *Bot) MemberName(ctx *router.Context, id string) (string, bool) {
	member, err := b.session.State.Member(ctx.GuildID, id)
	if err != nil {
		member, err = b.session.GuildMember(ctx.GuildID, id)
		if err != nil {
			return "", false
		}
	}
	if member.Nick != "" {
		return member.Nick, true
	}
	if member.User != nil {
		return member.User.Username, true
	}
	return "", false
}

// ChannelName returns the channel's current name.
func (b *Bot) ChannelName(ctx *router.Context, id string) (string, bool) {
	channel, err := b.session.State.Channel(id)
	if err != nil {
		channel, err = b.session.Channel(id)
		if err != nil {
			return "", false
		}
	}
	return channel.Name, true
}

// members prefers the state cache and falls back to one REST page.
func (b *Bot) members(guildID string) []*discordgo.Member {
	if guild, err := b.session.State.Guild(guildID); err == nil && len(guild.Members) > 0 {
		return guild.Members
	}
	members, err := b.session.GuildMembers(guildID, "", 1000)
	if err != nil {
		log.Warn().Err(err).Str("guild", guildID).Msg("member listing failed")
		return nil
	}
	return members
}
