// Package mappack builds, caches and publishes tournament mappacks.
//
// A mappack is a single zip holding the beatmap archives (.osz) of every map
// in a tournament mappool. Packs are content-addressed: the pool is
// normalized (trimmed, slots upper-cased, sorted by slot) and hashed, and the
// resulting [ContentKey] names the published object. Requests for a pool that
// was already built are answered from the store without touching the osu!
// API or any download mirror.
//
// # Quick Start
//
//	packs, err := disk.New("/var/lib/mappack")
//	if err != nil {
//	    return err
//	}
//	tokens := osu.NewTokenSource(clientID, clientSecret)
//	svc, err := mappack.New(
//	    mappack.WithStore(packs),
//	    mappack.WithMetadataClient(osu.NewClient(tokens)),
//	    mappack.WithPublicBaseURL("https://packs.example.com"),
//	)
//	if err != nil {
//	    return err
//	}
//	res, err := svc.Generate(ctx, []mappack.PoolEntry{
//	    {URL: "https://osu.ppy.sh/b/129891", Slot: "NM1"},
//	    {URL: "https://osu.ppy.sh/beatmapsets/39804#osu/129891", Slot: "hd1"},
//	})
//	fmt.Println(res.URL) // https://packs.example.com/{key}.zip
//
// # Failure Policy
//
// Building is best effort. An entry whose URL cannot be parsed, whose
// metadata cannot be fetched or whose archive cannot be downloaded is left
// out of the pack and reported in [Result.Entries]; the pack is still built
// and published. A build fails only when the store, the zip writer or the
// publish step fails, or when no entry could be resolved because the osu!
// credential exchange failed ([ErrCredentialsUnavailable]).
package mappack
