package oracle

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates the token length of a prompt.
type TokenCounter func(text string) (int, error)

var cl100k = sync.OnceValues(func() (tokenizer.Codec, error) {
	return tokenizer.Get(tokenizer.Cl100kBase)
})

// CL100KCounter counts tokens with the cl100k_base encoding.
func CL100KCounter() TokenCounter {
	return func(text string) (int, error) {
		enc, err := cl100k()
		if err != nil {
			return 0, err
		}
		return enc.Count(text)
	}
}
