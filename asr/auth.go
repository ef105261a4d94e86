package asr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/lightwhite-top/VoiceCoding/config"
)

// rfc1123GMT is the date layout the endpoint verifies signatures against.
// time.RFC1123 would render UTC times with a "UTC" zone name; the
// endpoint requires the literal "GMT".
const rfc1123GMT = "Mon, 02 Jan 2006 15:04:05 GMT"

func authDate() string {
	return time.Now().UTC().Format(rfc1123GMT)
}

// signedURL derives the per-request authentication query parameters from
// the credentials and a timestamp. The endpoint recomputes the
// HMAC-SHA256 over "host", "date" and the request line and accepts the
// request only within its clock-skew window, which bounds replay.
func signedURL(base string, creds config.Credentials, date string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}

	origin := fmt.Sprintf("host: %s\ndate: %s\nGET %s HTTP/1.1", u.Host, date, u.Path)

	mac := hmac.New(sha256.New, []byte(creds.APISecret))
	mac.Write([]byte(origin))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authOrigin := fmt.Sprintf(
		`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`,
		creds.APIKey, signature,
	)
	authorization := base64.StdEncoding.EncodeToString([]byte(authOrigin))

	q := url.Values{}
	q.Set("authorization", authorization)
	q.Set("date", date)
	q.Set("host", u.Host)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
