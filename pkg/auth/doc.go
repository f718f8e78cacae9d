// Package auth stores Weibo access tokens under account names.
//
// Manager tries the system keychain first, then an encrypted file in the
// user configuration directory, and finally reads WEIBOHARVEST_ACCESS_TOKEN.
package auth
