package session

// Typed оставляет элементы, приводимые к типу T
func Typed[T any, S any](items []S) []T {
	var out []T
	for _, item := range items {
		if v, ok := any(item).(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// ControllerData возвращает данные контроллеров с типом T
func ControllerData[T any](r *Registry, localOnly bool) []T {
	controllers := r.Controllers(localOnly)
	data := make([]any, 0, len(controllers))
	for _, c := range controllers {
		data = append(data, c.Data)
	}
	return Typed[T](data)
}

// PawnData возвращает данные пешек с типом T
func PawnData[T any](r *Registry, localOnly bool) []T {
	pawns := r.Pawns(localOnly)
	data := make([]any, 0, len(pawns))
	for _, p := range pawns {
		data = append(data, p.Data)
	}
	return Typed[T](data)
}

// TypedController возвращает данные контроллера по индексу, если они типа T
func TypedController[T any](r *Registry, index int) (T, bool) {
	var zero T
	c, ok := r.ControllerAt(index)
	if !ok {
		return zero, false
	}
	v, ok := c.Data.(T)
	return v, ok
}
