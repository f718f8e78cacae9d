package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteTokenGuide prints how to obtain a Weibo OAuth2 access token
func WriteTokenGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "WEIBO ACCESS TOKEN")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "weiboharvest calls the Weibo Open API with an OAuth2 access token.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 1: Register an application")
	fmt.Fprintln(w, "   - Go to https://open.weibo.com and create a web application")
	fmt.Fprintln(w, "   - Note its App Key, App Secret and redirect URI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 2: Authorize the account you harvest with")
	fmt.Fprintln(w, "   https://api.weibo.com/oauth2/authorize?client_id=<APP_KEY>&redirect_uri=<URI>")
	fmt.Fprintln(w, "   - After login the browser is redirected to <URI>?code=<CODE>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 3: Exchange the code for a token")
	fmt.Fprintln(w, "   POST https://api.weibo.com/oauth2/access_token")
	fmt.Fprintln(w, "        client_id, client_secret, grant_type=authorization_code, code, redirect_uri")
	fmt.Fprintln(w, "   - The response holds access_token, expires_in and uid")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "NOTES:")
	fmt.Fprintln(w, "   - Tokens of unaudited applications expire after about a day")
	fmt.Fprintln(w, "   - The token grants access to the account; it is stored encrypted")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
