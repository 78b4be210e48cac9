package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	movieCodeRe  = regexp.MustCompile(`^[\p{L}\p{N}_\-.]{1,64}$`)
	handleRe     = regexp.MustCompile(`^@[A-Za-z][A-Za-z0-9_]{3,31}$`)
	chatIDRe     = regexp.MustCompile(`^-?[0-9]{5,20}$`)
	channelURLRe = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?(?:t|telegram)\.me/([A-Za-z][A-Za-z0-9_]{3,31})/?$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("moviecode", func(fl validator.FieldLevel) bool {
		return movieCodeRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return isChannelRef(fl.Field().String())
	})
	return v
}

func isChannelRef(s string) bool {
	return handleRe.MatchString(s) || chatIDRe.MatchString(s)
}

func checkVar(field string, value any, tag, msg string) error {
	if err := validate.Var(value, tag); err != nil {
		return invalid(field, msg)
	}
	return nil
}

func parseMovieCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if err := checkVar(fieldCode, code, "required,moviecode", "send a single word code, letters and digits only"); err != nil {
		return "", err
	}
	return code, nil
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, invalid(fieldAdminID, "a numeric Telegram user id is expected")
	}
	if err := checkVar(fieldAdminID, id, "gt=0", "the id must be a positive number"); err != nil {
		return 0, err
	}
	return id, nil
}

// parseChannel accepts @name, a numeric chat id or a t.me link, with or without scheme.
func parseChannel(raw string) (string, error) {
	ch := strings.TrimSpace(raw)
	if m := channelURLRe.FindStringSubmatch(ch); m != nil {
		ch = "@" + m[1]
	}
	if err := checkVar(fieldChannel, ch, "required,channel", "send @channel_name, a t.me link or a numeric chat id"); err != nil {
		return "", err
	}
	return ch, nil
}

func parseLink(raw string) (string, error) {
	link := strings.TrimSpace(raw)
	if err := checkVar(fieldPayload, link, "required,max=4096", "send a link or attach the video"); err != nil {
		return "", err
	}
	return link, nil
}
