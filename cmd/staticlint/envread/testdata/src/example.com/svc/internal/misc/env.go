package misc

import "os"

func Lookup(k string) (string, bool) { return os.LookupEnv(k) }
