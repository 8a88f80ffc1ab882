package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

// Parse decodes one IRC line. Commands are upper-cased.
func Parse(line string) (ircmsg.Message, error) {
	msg, err := ircmsg.ParseLine(line)
	if err != nil {
		return msg, fmt.Errorf("failed to parse line: %w", err)
	}
	msg.Command = strings.ToUpper(msg.Command)
	return msg, nil
}

// Encode serializes msg without the trailing CRLF.
func Encode(msg ircmsg.Message) (string, error) {
	line, err := msg.Line()
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", msg.Command, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Numeric builds a numeric reply from server to nick.
func Numeric(server, nick, code string, params ...string) ircmsg.Message {
	if nick == "" {
		nick = "*"
	}
	return ircmsg.MakeMessage(nil, server, code, append([]string{nick}, params...)...)
}

// TProp builds a replicated property line. The value is always sent as a
// trailing parameter so an empty value survives as a delete.
func TProp(source, target string, creationTS, updateTS int64, key, value string) ircmsg.Message {
	msg := ircmsg.MakeMessage(nil, source, "TPROP",
		target,
		strconv.FormatInt(creationTS, 10),
		strconv.FormatInt(updateTS, 10),
		key,
		value)
	msg.ForceTrailing()
	return msg
}

// PropEcho builds the PROP line echoed to a client after a change.
func PropEcho(mask, target, key, value string) ircmsg.Message {
	msg := ircmsg.MakeMessage(nil, mask, "PROP", target, key, value)
	msg.ForceTrailing()
	return msg
}
