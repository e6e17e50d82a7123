// Package npm provides an HTTP client for npm-compatible registries.
//
// # Usage
//
//	client := npm.NewClient(npm.Config{Cache: c})
//	doc, err := client.FetchPackument(ctx, "express", false)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(doc.DistTags["latest"], len(doc.Versions))
//
// # Packuments
//
// [FetchPackument] returns the whole [Packument]: every published version
// with its dependency sections, dist-tags and, when requested with
// Config.FullMeta, publish times. By default the abbreviated install
// metadata format is requested, which is much smaller.
//
// # Caching
//
// Documents are cached through [cache.Cache] under keys scoped to the
// registry URL and, for private registries, to the auth token. Pass
// refresh=true to bypass the cache.
package npm
