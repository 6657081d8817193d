package convert

func Slice[In any, Out any](input []In, fn func(In) Out) []Out {
	out := make([]Out, 0, len(input))
	for _, v := range input {
		out = append(out, fn(v))
	}
	return out
}
