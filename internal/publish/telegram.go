package publish

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "feedbot/pkg/logx"
)

// TelegramConfig configures the channel publisher.
type TelegramConfig struct {
	Token     string
	Channel   string // "@name" or numeric chat id
	ParseMode string // "", "HTML" or "MarkdownV2"
}

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram posts feed text to a channel. The id of the first message is the external id.
type Telegram struct {
	bot       sender
	to        tele.Recipient
	parseMode tele.ParseMode
	log       logx.Logger
}

type channelName string

func (c channelName) Recipient() string { return string(c) }

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	to, err := parseRecipient(cfg.Channel)
	if err != nil {
		return nil, err
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{bot: b, to: to, parseMode: tele.ParseMode(cfg.ParseMode), log: log}, nil
}

func parseRecipient(channel string) (tele.Recipient, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, errors.New("telegram channel is empty")
	}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return tele.ChatID(id), nil
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return channelName(channel), nil
}

func (t *Telegram) Publish(ctx context.Context, text string) (string, error) {
	chunks := splitText(text, telegramTextLimit, string(t.parseMode))
	if len(chunks) == 0 {
		return "", ErrEmptyText
	}

	first := ""
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		opt := &tele.SendOptions{ParseMode: t.parseMode, DisableWebPagePreview: true}
		msg, err := t.bot.Send(t.to, chunk, opt)
		if err != nil {
			if errors.Is(err, tele.ErrUnauthorized) || errors.Is(err, tele.ErrChatNotFound) {
				err = Permanent(err)
			}
			if first != "" {
				// part of the post is live; retrying would duplicate it
				return first, Permanent(err)
			}
			return "", err
		}
		if i == 0 {
			first = strconv.Itoa(msg.ID)
		}
	}
	if len(chunks) > 1 {
		t.log.Debug("post split", logx.Int("chunks", len(chunks)), logx.String("id", first))
	}
	return first, nil
}

const telegramTextLimit = 4000

// splitText splits long posts into chunks Telegram accepts. It prefers newline
// boundaries and, for HTML, avoids cutting inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
