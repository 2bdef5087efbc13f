package dbconfig

// SetLoadedHook replaces the function Lock runs between the two interceptor
// registration phases.
func SetLoadedHook(i *Internal, fn func(*LoadedEventArgs) error) {
	i.onLoaded = fn
}
