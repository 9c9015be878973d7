package anthropic

// BuildCachedSystemBlocks returns a system prompt with a cache breakpoint.
// Consecutive calls that share the same reference material (a candidate's
// resume library) then read it from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
