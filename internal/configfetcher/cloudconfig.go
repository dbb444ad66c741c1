package configfetcher

// CloudConfigFile implements compose.CloudConfigProvider: the Composer's
// step 3 (§4.7) pulls the BOSH cloud-config file straight out of
// whatever this Fetcher already downloaded under type "cloud".
func (f *Fetcher) CloudConfigFile() (string, bool) {
	return f.ConfigFile("cloud", "default")
}
